package insights

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/playerpulse/internal/anomaly"
	"github.com/ignite/playerpulse/internal/artifact"
	"github.com/ignite/playerpulse/internal/churn"
	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/eventstore"
	"github.com/ignite/playerpulse/internal/metrics"
	"github.com/ignite/playerpulse/internal/pkg/logger"
	"github.com/ignite/playerpulse/internal/profile"
	"github.com/ignite/playerpulse/internal/schema"
	"github.com/ignite/playerpulse/internal/segmentation"
)

// ChurnSink persists churn predictions outside the session.
type ChurnSink interface {
	SavePrediction(ctx context.Context, p *churn.Prediction) error
}

// SegmentSink persists segment assignments outside the session.
type SegmentSink interface {
	SaveAssignment(ctx context.Context, a *segmentation.Assignment) error
}

// Pipeline builds sessions from normalized events. Model failures never fail
// a build: each component lands as ok, degraded, or unavailable, and the
// session serves whatever was computed.
type Pipeline struct {
	cfg *config.Config

	artifacts   *artifact.Store
	churnSink   ChurnSink
	segmentSink SegmentSink
}

// NewPipeline creates a session pipeline.
func NewPipeline(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// WithArtifacts mirrors derived artifacts to an artifact store.
func (p *Pipeline) WithArtifacts(s *artifact.Store) *Pipeline {
	p.artifacts = s
	return p
}

// WithSinks persists derived artifacts to external repositories.
func (p *Pipeline) WithSinks(cs ChurnSink, ss SegmentSink) *Pipeline {
	p.churnSink = cs
	p.segmentSink = ss
	return p
}

// Build derives every insight component from a normalized event batch. The
// returned session is complete even for an empty batch; components that could
// not compute are marked unavailable. If the context deadline passes midway,
// the remaining components are marked degraded rather than computed late.
func (p *Pipeline) Build(ctx context.Context, events []eventstore.Event, quality *schema.Report) *Session {
	store := eventstore.New(events)
	s := &Session{
		Store:    store,
		Profiles: profile.Build(store),
		Engine:   metrics.NewEngine(store, p.cfg.Metrics),
		Report: &Report{
			DatasetID:   store.ID(),
			BuiltAt:     time.Now().UTC(),
			TotalEvents: store.Len(),
			TotalUsers:  len(store.Users()),
			Quality:     quality,
			Components:  make(map[string]ComponentReport),
		},
	}
	if first, last, ok := store.Span(); ok {
		s.Report.From, s.Report.To = first, last
	}

	p.buildMetrics(s)
	p.buildSegments(ctx, s)
	p.buildChurn(ctx, s)
	p.buildAnomalies(ctx, s)

	p.persist(ctx, s)

	logger.Info("Session built",
		"dataset_id", s.ID().String(),
		"events", s.Report.TotalEvents,
		"users", s.Report.TotalUsers,
		"metrics", string(s.StatusOf(ComponentMetrics)),
		"segments", string(s.StatusOf(ComponentSegments)),
		"churn", string(s.StatusOf(ComponentChurn)),
		"anomalies", string(s.StatusOf(ComponentAnomalies)))
	return s
}

func (p *Pipeline) buildMetrics(s *Session) {
	if s.Store.Len() == 0 {
		s.Report.Components[ComponentMetrics] = ComponentReport{
			Status: StatusUnavailable,
			Detail: "no events",
		}
		return
	}
	s.Report.Components[ComponentMetrics] = ComponentReport{Status: StatusOK}
}

func (p *Pipeline) buildSegments(ctx context.Context, s *Session) {
	if timedOut(ctx, s.Report, ComponentSegments) {
		return
	}
	if s.Store.Len() == 0 {
		s.Report.Components[ComponentSegments] = ComponentReport{
			Status: StatusUnavailable,
			Detail: "no events",
		}
		return
	}

	assignment, err := segmentation.NewEngine(p.cfg.Segmentation).Run(s.Profiles)
	s.Segments = assignment
	switch {
	case errors.Is(err, segmentation.ErrInsufficientData):
		s.Report.Components[ComponentSegments] = ComponentReport{
			Status: StatusDegraded,
			Detail: "not enough users to cluster",
		}
	case err != nil:
		s.Segments = nil
		s.Report.Components[ComponentSegments] = ComponentReport{
			Status: StatusUnavailable,
			Detail: err.Error(),
		}
	default:
		s.Report.Components[ComponentSegments] = ComponentReport{Status: StatusOK}
		s.Engine.SetSegmentLookup(func(userID string) string {
			return string(assignment.LabelFor(userID))
		})
	}
}

func (p *Pipeline) buildChurn(ctx context.Context, s *Session) {
	if timedOut(ctx, s.Report, ComponentChurn) {
		return
	}
	if s.Store.Len() == 0 {
		s.Report.Components[ComponentChurn] = ComponentReport{
			Status: StatusUnavailable,
			Detail: "no events",
		}
		return
	}

	prediction, err := churn.NewEngine(p.cfg.Churn).Run(s.Store)
	switch {
	case errors.Is(err, churn.ErrInsufficientData):
		s.Report.Components[ComponentChurn] = ComponentReport{
			Status: StatusUnavailable,
			Detail: "not enough labeled history to train",
		}
	case err != nil:
		s.Report.Components[ComponentChurn] = ComponentReport{
			Status: StatusUnavailable,
			Detail: err.Error(),
		}
	case prediction.LowConfidence:
		s.Churn = prediction
		s.Report.Components[ComponentChurn] = ComponentReport{
			Status: StatusDegraded,
			Detail: "model accuracy below configured floor",
		}
	default:
		s.Churn = prediction
		s.Report.Components[ComponentChurn] = ComponentReport{Status: StatusOK}
	}
}

func (p *Pipeline) buildAnomalies(ctx context.Context, s *Session) {
	if timedOut(ctx, s.Report, ComponentAnomalies) {
		return
	}
	days := len(s.Store.Days())
	if days == 0 {
		s.Report.Components[ComponentAnomalies] = ComponentReport{
			Status: StatusUnavailable,
			Detail: "no events",
		}
		return
	}
	if days <= p.cfg.Anomaly.Window {
		s.Report.Components[ComponentAnomalies] = ComponentReport{
			Status: StatusDegraded,
			Detail: "history shorter than the baseline window",
		}
		return
	}

	detector := anomaly.NewDetector(p.cfg.Anomaly)
	s.Anomalies = detector.DetectAll([]metrics.Series{
		s.Engine.ActiveUsers(metrics.Filter{}, metrics.GrainDay),
		s.Engine.Revenue(metrics.Filter{}, metrics.GrainDay),
		s.Engine.ARPDAU(metrics.Filter{}, metrics.GrainDay),
	})
	s.Report.Components[ComponentAnomalies] = ComponentReport{Status: StatusOK}
}

// persist mirrors derived artifacts to the artifact store and the optional
// repositories. Persistence failures degrade nothing: the session already
// holds the data.
func (p *Pipeline) persist(ctx context.Context, s *Session) {
	id := s.ID().String()
	if p.artifacts != nil {
		if err := p.artifacts.Save(ctx, "reports", id, s.Report); err != nil {
			logger.Warn("Report artifact save failed", "error", err.Error())
		}
		if s.Segments != nil {
			if err := p.artifacts.Save(ctx, "segments", id, s.Segments); err != nil {
				logger.Warn("Segment artifact save failed", "error", err.Error())
			}
		}
		if s.Churn != nil {
			if err := p.artifacts.Save(ctx, "churn", id, s.Churn); err != nil {
				logger.Warn("Churn artifact save failed", "error", err.Error())
			}
		}
	}
	if p.segmentSink != nil && s.Segments != nil {
		if err := p.segmentSink.SaveAssignment(ctx, s.Segments); err != nil {
			logger.Warn("Segment repository save failed", "error", err.Error())
		}
	}
	if p.churnSink != nil && s.Churn != nil {
		if err := p.churnSink.SavePrediction(ctx, s.Churn); err != nil {
			logger.Warn("Churn repository save failed", "error", err.Error())
		}
	}
}

// timedOut marks a component degraded when the build deadline has already
// passed, so a slow build ships partial insights instead of stale ones.
func timedOut(ctx context.Context, r *Report, component string) bool {
	if ctx.Err() == nil {
		return false
	}
	r.Components[component] = ComponentReport{
		Status: StatusDegraded,
		Detail: "computation timed out",
	}
	return true
}
