package churn

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RiskTier buckets a churn probability for dashboard consumption.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// ErrInsufficientData is returned when the store holds too little labeled
// history to train a model. Callers treat it as a degraded result.
var ErrInsufficientData = errors.New("churn: not enough labeled history to train")

// Score is one user's churn probability for the prediction horizon.
type Score struct {
	UserID      string   `json:"user_id"`
	Probability float64  `json:"probability"`
	Tier        RiskTier `json:"tier"`
}

// Evaluation holds held-out performance of a trained model.
type Evaluation struct {
	TrainSize int     `json:"train_size"`
	TestSize  int     `json:"test_size"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	// FeatureImportance maps feature names to their normalized share of
	// split-gain across all boosting rounds. Shares sum to 1.
	FeatureImportance map[string]float64 `json:"feature_importance"`
}

// Prediction is the result of one churn run over a store build.
type Prediction struct {
	StoreID     uuid.UUID  `json:"store_id"`
	Cutoff      time.Time  `json:"cutoff"`
	HorizonDays int        `json:"horizon_days"`
	BuiltAt     time.Time  `json:"built_at"`
	Scores      []Score    `json:"scores"`
	Eval        Evaluation `json:"evaluation"`
	// LowConfidence marks models whose held-out accuracy fell below the
	// configured floor. Scores are still served, annotated with this flag.
	LowConfidence bool `json:"low_confidence"`

	byUser map[string]int
}

// ScoreFor returns the score for a user, or nil if the user was not scored.
func (p *Prediction) ScoreFor(userID string) *Score {
	if p == nil {
		return nil
	}
	i, ok := p.byUser[userID]
	if !ok {
		return nil
	}
	return &p.Scores[i]
}
