package insights

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignite/playerpulse/internal/anomaly"
	"github.com/ignite/playerpulse/internal/assistant"
	"github.com/ignite/playerpulse/internal/churn"
	"github.com/ignite/playerpulse/internal/eventstore"
	"github.com/ignite/playerpulse/internal/metrics"
	"github.com/ignite/playerpulse/internal/profile"
	"github.com/ignite/playerpulse/internal/schema"
	"github.com/ignite/playerpulse/internal/segmentation"
)

// Status reports how much of an insight component could be computed.
type Status string

const (
	// StatusOK means the component computed fully.
	StatusOK Status = "ok"
	// StatusDegraded means the component computed partially or with caveats.
	StatusDegraded Status = "degraded"
	// StatusUnavailable means the component could not be computed at all.
	StatusUnavailable Status = "unavailable"
)

// ComponentReport is the status of one insight component in a session.
type ComponentReport struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report describes one session build: what was computed, how well, and over
// what data.
type Report struct {
	DatasetID uuid.UUID `json:"dataset_id"`
	BuiltAt   time.Time `json:"built_at"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`

	TotalEvents int `json:"total_events"`
	TotalUsers  int `json:"total_users"`

	Quality    *schema.Report             `json:"quality,omitempty"`
	Components map[string]ComponentReport `json:"components"`
}

// Component names used in Report.Components.
const (
	ComponentMetrics   = "metrics"
	ComponentSegments  = "segments"
	ComponentChurn     = "churn"
	ComponentAnomalies = "anomalies"
)

// Session owns one dataset build and every artifact derived from it. A
// session is immutable after construction; a new upload builds a new session
// and swaps it in atomically. Readers holding the old session keep a
// consistent view until they drop it.
type Session struct {
	Store    *eventstore.Store
	Profiles *profile.Table
	Engine   *metrics.Engine

	Segments  *segmentation.Assignment
	Churn     *churn.Prediction
	Anomalies []anomaly.Anomaly

	Report *Report
}

// ID returns the dataset build identifier.
func (s *Session) ID() uuid.UUID { return s.Store.ID() }

// StatusOf returns the status of one component.
func (s *Session) StatusOf(component string) Status {
	if r, ok := s.Report.Components[component]; ok {
		return r.Status
	}
	return StatusUnavailable
}

// Digest folds the session's derived artifacts into the compact form the
// insight generator prompts over.
func (s *Session) Digest() assistant.Digest {
	d := assistant.Digest{
		DatasetID:   s.ID().String(),
		From:        s.Report.From,
		To:          s.Report.To,
		TotalEvents: s.Store.Len(),
		TotalUsers:  len(s.Store.Users()),
	}

	summary := s.Engine.WindowSummary(metrics.Filter{})
	d.PayingUsers = summary.PayingUsers
	d.Revenue = summary.TotalRevenue
	d.ARPPU = summary.ARPPU
	d.ARPDAU = summary.ARPDAU

	if s.Segments != nil {
		for _, seg := range s.Segments.Summaries {
			d.Segments = append(d.Segments, assistant.SegmentDigest{
				Label:       string(seg.Label),
				Users:       seg.Users,
				MeanRevenue: seg.MeanRevenue,
			})
		}
	}
	if s.Churn != nil && len(s.Churn.Scores) > 0 {
		cd := &assistant.ChurnDigest{
			Accuracy:      s.Churn.Eval.Accuracy,
			LowConfidence: s.Churn.LowConfidence,
		}
		for _, sc := range s.Churn.Scores {
			if sc.Tier == churn.RiskHigh {
				cd.HighRiskUsers++
			}
		}
		var best float64
		for name, share := range s.Churn.Eval.FeatureImportance {
			if share > best || (share == best && (cd.TopFeature == "" || name < cd.TopFeature)) {
				best, cd.TopFeature = share, name
			}
		}
		d.Churn = cd
	}
	for _, a := range s.Anomalies {
		d.Anomaly = append(d.Anomaly, assistant.AnomalyDigest{
			Date:      a.Date,
			Metric:    a.Metric,
			Observed:  a.Observed,
			Direction: string(a.Direction),
		})
	}
	return d
}
