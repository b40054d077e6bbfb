package assistant

import (
	"context"
	"time"
)

// Digest is the compact, already-computed view of one dataset build that
// grounds every prompt. The generator never sees raw events; it reasons only
// over derived aggregates.
type Digest struct {
	DatasetID string    `json:"dataset_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`

	TotalEvents int      `json:"total_events"`
	TotalUsers  int      `json:"total_users"`
	PayingUsers int      `json:"paying_users"`
	Revenue     float64  `json:"revenue"`
	ARPPU       *float64 `json:"arppu"`
	ARPDAU      float64  `json:"arpdau"`

	Segments []SegmentDigest `json:"segments,omitempty"`
	Churn    *ChurnDigest    `json:"churn,omitempty"`
	Anomaly  []AnomalyDigest `json:"anomalies,omitempty"`
}

// SegmentDigest summarizes one behavioral segment for prompting.
type SegmentDigest struct {
	Label       string  `json:"label"`
	Users       int     `json:"users"`
	MeanRevenue float64 `json:"mean_revenue"`
}

// ChurnDigest summarizes the churn model output for prompting.
type ChurnDigest struct {
	HighRiskUsers int     `json:"high_risk_users"`
	Accuracy      float64 `json:"accuracy"`
	LowConfidence bool    `json:"low_confidence"`
	TopFeature    string  `json:"top_feature"`
}

// AnomalyDigest summarizes one flagged metric point for prompting.
type AnomalyDigest struct {
	Date      time.Time `json:"date"`
	Metric    string    `json:"metric"`
	Observed  float64   `json:"observed"`
	Direction string    `json:"direction"`
}

// InsightGenerator produces natural-language analysis over a dataset digest.
// Implementations are optional; the pipeline runs fully without one.
type InsightGenerator interface {
	// GenerateInsights returns a narrative summary of the dataset: notable
	// metrics, segment structure, churn risk, and anomalies worth attention.
	GenerateInsights(ctx context.Context, digest Digest) (string, error)

	// AnswerQuery answers a free-form analyst question grounded on the digest.
	AnswerQuery(ctx context.Context, digest Digest, question string) (string, error)
}
