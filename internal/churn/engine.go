package churn

import (
	"math/rand"
	"sort"
	"time"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/eventstore"
	"github.com/ignite/playerpulse/internal/pkg/logger"
)

// minLabeledUsers is the floor below which a train/test split is meaningless.
const minLabeledUsers = 10

// Engine trains a churn model per store build and scores every current user.
type Engine struct {
	cfg config.ChurnConfig
}

// NewEngine creates a churn engine.
func NewEngine(cfg config.ChurnConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Run labels historical users against a cutoff placed one horizon before the
// store's last day, trains a boosted-tree model on features visible at the
// cutoff, and scores every user on their full history. Users active after the
// cutoff are the retained class; everyone else churned.
//
// ErrInsufficientData is returned when the store spans too little history,
// too few users qualify, or every labeled user fell in one class.
func (e *Engine) Run(store *eventstore.Store) (*Prediction, error) {
	p := &Prediction{
		StoreID:     store.ID(),
		HorizonDays: e.cfg.HorizonDays,
		BuiltAt:     time.Now().UTC(),
		byUser:      make(map[string]int),
	}

	first, last, ok := store.Span()
	if !ok {
		return p, ErrInsufficientData
	}
	cutoff := last.AddDate(0, 0, -e.cfg.HorizonDays)
	p.Cutoff = cutoff
	if !cutoff.After(first.AddDate(0, 0, e.cfg.MinHistoryDays-1)) {
		return p, ErrInsufficientData
	}

	var (
		features [][]float64
		labels   []float64
	)
	for _, userID := range store.Users() {
		if historyDays(store, userID, cutoff) < e.cfg.MinHistoryDays {
			continue
		}
		vec, ok := vectorAt(store, userID, cutoff)
		if !ok {
			continue
		}
		label := 1.0
		if activeAfter(store, userID, cutoff) {
			label = 0.0
		}
		features = append(features, vec)
		labels = append(labels, label)
	}

	if len(labels) < minLabeledUsers || singleClass(labels) {
		logger.Warn("Churn training skipped",
			"labeled_users", len(labels),
			"store_id", store.ID().String())
		return p, ErrInsufficientData
	}

	trainIdx, testIdx := splitIndices(len(labels), e.cfg.TestFraction, e.cfg.Seed)
	model := trainBoosted(
		subset(features, trainIdx), subsetF(labels, trainIdx),
		e.cfg.Rounds, e.cfg.MaxDepth, e.cfg.LearningRate,
	)

	p.Eval = evaluate(model, features, labels, testIdx)
	p.Eval.TrainSize = len(trainIdx)
	p.Eval.FeatureImportance = model.normalizedImportance()
	if p.Eval.Accuracy < e.cfg.MinAccuracy {
		p.LowConfidence = true
		logger.Warn("Churn model below accuracy floor",
			"accuracy", p.Eval.Accuracy,
			"floor", e.cfg.MinAccuracy)
	}

	// Score every user on their full history so the probabilities reflect
	// the next horizon after the store's last day.
	for _, userID := range store.Users() {
		vec, ok := vectorAt(store, userID, last)
		if !ok {
			continue
		}
		prob := model.predict(vec)
		p.Scores = append(p.Scores, Score{
			UserID:      userID,
			Probability: prob,
			Tier:        e.tierFor(prob),
		})
	}
	sort.SliceStable(p.Scores, func(i, j int) bool {
		return p.Scores[i].Probability > p.Scores[j].Probability
	})
	for i, s := range p.Scores {
		p.byUser[s.UserID] = i
	}

	logger.Info("Churn prediction complete",
		"store_id", store.ID().String(),
		"scored", len(p.Scores),
		"accuracy", p.Eval.Accuracy,
		"low_confidence", p.LowConfidence)
	return p, nil
}

func (e *Engine) tierFor(prob float64) RiskTier {
	switch {
	case prob >= e.cfg.HighThreshold:
		return RiskHigh
	case prob < e.cfg.LowThreshold:
		return RiskLow
	default:
		return RiskMedium
	}
}

// splitIndices deterministically shuffles [0, n) and carves off the test
// fraction. The training side always keeps at least one row.
func splitIndices(n int, testFraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testN := int(float64(n) * testFraction)
	if testN >= n {
		testN = n - 1
	}
	return perm[testN:], perm[:testN]
}

func evaluate(model *boostedModel, features [][]float64, labels []float64, testIdx []int) Evaluation {
	ev := Evaluation{TestSize: len(testIdx)}
	if len(testIdx) == 0 {
		return ev
	}

	var correct, tp, fp, fn float64
	for _, i := range testIdx {
		predicted := 0.0
		if model.predict(features[i]) >= 0.5 {
			predicted = 1.0
		}
		switch {
		case predicted == labels[i]:
			correct++
			if predicted == 1 {
				tp++
			}
		case predicted == 1:
			fp++
		default:
			fn++
		}
	}

	ev.Accuracy = correct / float64(len(testIdx))
	if tp+fp > 0 {
		ev.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		ev.Recall = tp / (tp + fn)
	}
	return ev
}

func singleClass(labels []float64) bool {
	for _, l := range labels[1:] {
		if l != labels[0] {
			return false
		}
	}
	return true
}

func subset(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func subsetF(vals []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = vals[j]
	}
	return out
}
