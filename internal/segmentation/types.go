package segmentation

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Label is the behavioral segment assigned to a user.
type Label string

const (
	LabelWhale   Label = "whale"
	LabelDolphin Label = "dolphin"
	LabelMinnow  Label = "minnow"
	LabelFree    Label = "free"

	// LabelInsufficientData marks users with too little history to cluster.
	LabelInsufficientData Label = "insufficient_data"
)

// ErrInsufficientData is returned when fewer clusterable users exist than
// clusters requested. Callers treat it as a degraded result, not a failure.
var ErrInsufficientData = errors.New("segmentation: not enough users to cluster")

// SegmentSummary describes one segment of an assignment.
type SegmentSummary struct {
	Label           Label   `json:"label"`
	Users           int     `json:"users"`
	MeanRevenue     float64 `json:"mean_revenue"`
	MeanSessions    float64 `json:"mean_sessions"`
	MeanRecencyDays float64 `json:"mean_recency_days"`
	MeanPurchases   float64 `json:"mean_purchases"`
}

// Assignment is the result of one segmentation run over a profile table.
type Assignment struct {
	StoreID   uuid.UUID        `json:"store_id"`
	Seed      int64            `json:"seed"`
	Clusters  int              `json:"clusters"`
	BuiltAt   time.Time        `json:"built_at"`
	Labels    map[string]Label `json:"labels"`
	Summaries []SegmentSummary `json:"summaries"`
	// Converged reports whether Lloyd's iteration reached a fixed point
	// before hitting the iteration cap.
	Converged bool `json:"converged"`
}

// LabelFor returns the segment for a user, or insufficient_data if the user
// was never assigned.
func (a *Assignment) LabelFor(userID string) Label {
	if a == nil {
		return LabelInsufficientData
	}
	if l, ok := a.Labels[userID]; ok {
		return l
	}
	return LabelInsufficientData
}

// rankedLabels returns ordinal labels for k clusters ranked by mean revenue,
// highest first. For the default k=4 this is whale through free.
func rankedLabels(k int) []Label {
	base := []Label{LabelWhale, LabelDolphin, LabelMinnow, LabelFree}
	if k <= len(base) {
		return base[:k]
	}
	out := make([]Label, 0, k)
	out = append(out, base...)
	for i := len(base); i < k; i++ {
		out = append(out, Label("tier_"+strconv.Itoa(i+1)))
	}
	return out
}
