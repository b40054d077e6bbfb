package churn

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/eventstore"
)

func testConfig() config.ChurnConfig {
	return config.ChurnConfig{
		HorizonDays:    7,
		MinHistoryDays: 3,
		Rounds:         100,
		MaxDepth:       3,
		LearningRate:   0.1,
		TestFraction:   0.2,
		Seed:           42,
		LowThreshold:   0.3,
		HighThreshold:  0.7,
		MinAccuracy:    0.6,
	}
}

func sessionOn(userID string, d int) eventstore.Event {
	return eventstore.Event{
		UserID:    userID,
		Name:      eventstore.EventSessionStart,
		Category:  eventstore.Categorize(eventstore.EventSessionStart),
		Timestamp: time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC),
	}
}

// lapsedAndLoyalStore builds n users that stop after day 5 and n users active
// through day 30. With a 7-day horizon the cutoff lands on day 23, so the
// lapsed half is the churned class.
func lapsedAndLoyalStore(n int) *eventstore.Store {
	var events []eventstore.Event
	for u := 0; u < n; u++ {
		lapsed := fmt.Sprintf("lapsed-%02d", u)
		for d := 1; d <= 5; d++ {
			events = append(events, sessionOn(lapsed, d))
		}
		loyal := fmt.Sprintf("loyal-%02d", u)
		for d := 1; d <= 30; d++ {
			events = append(events, sessionOn(loyal, d))
		}
	}
	return eventstore.New(events)
}

func TestRunSeparatesLapsedFromLoyal(t *testing.T) {
	e := NewEngine(testConfig())
	p, err := e.Run(lapsedAndLoyalStore(15))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	wantCutoff := time.Date(2024, 3, 23, 0, 0, 0, 0, time.UTC)
	if !p.Cutoff.Equal(wantCutoff) {
		t.Errorf("cutoff = %v, want %v", p.Cutoff, wantCutoff)
	}
	if p.Eval.Accuracy != 1.0 {
		t.Errorf("held-out accuracy = %v, want 1.0 on separable data", p.Eval.Accuracy)
	}
	if p.LowConfidence {
		t.Error("low-confidence flag set despite perfect accuracy")
	}

	for u := 0; u < 15; u++ {
		lapsed := p.ScoreFor(fmt.Sprintf("lapsed-%02d", u))
		loyal := p.ScoreFor(fmt.Sprintf("loyal-%02d", u))
		if lapsed == nil || loyal == nil {
			t.Fatal("missing score for known user")
		}
		if lapsed.Probability <= loyal.Probability {
			t.Errorf("lapsed-%02d prob %.3f not above loyal prob %.3f",
				u, lapsed.Probability, loyal.Probability)
		}
		for _, s := range []*Score{lapsed, loyal} {
			if s.Probability < 0 || s.Probability > 1 {
				t.Errorf("probability %v outside [0, 1]", s.Probability)
			}
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	store := lapsedAndLoyalStore(10)
	e := NewEngine(testConfig())

	first, err := e.Run(store)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := e.Run(store)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first.Scores) != len(second.Scores) {
		t.Fatalf("score counts differ: %d vs %d", len(first.Scores), len(second.Scores))
	}
	for i := range first.Scores {
		a, b := first.Scores[i], second.Scores[i]
		if a.UserID != b.UserID || a.Probability != b.Probability || a.Tier != b.Tier {
			t.Errorf("score %d differs across runs: %+v vs %+v", i, a, b)
		}
	}
	if first.Eval.Accuracy != second.Eval.Accuracy {
		t.Errorf("accuracy differs across runs")
	}
}

func TestRunInsufficientData(t *testing.T) {
	e := NewEngine(testConfig())

	if _, err := e.Run(eventstore.New(nil)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty store err = %v, want ErrInsufficientData", err)
	}

	// Too few labeled users.
	var few []eventstore.Event
	for u := 0; u < 3; u++ {
		for d := 1; d <= 30; d++ {
			few = append(few, sessionOn(fmt.Sprintf("u%d", u), d))
		}
	}
	if _, err := e.Run(eventstore.New(few)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("small store err = %v, want ErrInsufficientData", err)
	}

	// Everyone retained: a single class is untrainable.
	var loyalOnly []eventstore.Event
	for u := 0; u < 12; u++ {
		for d := 1; d <= 30; d++ {
			loyalOnly = append(loyalOnly, sessionOn(fmt.Sprintf("u%02d", u), d))
		}
	}
	if _, err := e.Run(eventstore.New(loyalOnly)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("single-class store err = %v, want ErrInsufficientData", err)
	}
}

func TestTierFor(t *testing.T) {
	e := NewEngine(testConfig())
	cases := []struct {
		prob float64
		want RiskTier
	}{
		{0.0, RiskLow},
		{0.29, RiskLow},
		{0.3, RiskMedium},
		{0.5, RiskMedium},
		{0.69, RiskMedium},
		{0.7, RiskHigh},
		{1.0, RiskHigh},
	}
	for _, c := range cases {
		if got := e.tierFor(c.prob); got != c.want {
			t.Errorf("tierFor(%v) = %s, want %s", c.prob, got, c.want)
		}
	}
}

func TestScoreForUnknownUser(t *testing.T) {
	var p *Prediction
	if p.ScoreFor("ghost") != nil {
		t.Error("nil prediction should yield nil score")
	}
	p = &Prediction{byUser: map[string]int{}}
	if p.ScoreFor("ghost") != nil {
		t.Error("unknown user should yield nil score")
	}
}

func TestBoostedModelSeparable(t *testing.T) {
	x := [][]float64{{0}, {1}, {9}, {10}}
	y := []float64{0, 0, 1, 1}

	m := trainBoosted(x, y, 50, 2, 0.3)
	if m.predict([]float64{0.5}) >= 0.5 {
		t.Errorf("low point predicted %.3f, want < 0.5", m.predict([]float64{0.5}))
	}
	if m.predict([]float64{9.5}) <= 0.5 {
		t.Errorf("high point predicted %.3f, want > 0.5", m.predict([]float64{9.5}))
	}
}

func TestFitTreeSplitsOnBoundary(t *testing.T) {
	x := [][]float64{{0}, {0}, {10}, {10}}
	target := []float64{-0.5, -0.5, 0.5, 0.5}
	importance := make([]float64, 1)

	tree := fitTree(x, target, []int{0, 1, 2, 3}, 1, importance)
	if tree.leaf {
		t.Fatal("expected a split, got a leaf")
	}
	if tree.threshold != 5 {
		t.Errorf("threshold = %v, want 5", tree.threshold)
	}
	if got := tree.predict([]float64{0}); got != -0.5 {
		t.Errorf("left leaf = %v, want -0.5", got)
	}
	if got := tree.predict([]float64{10}); got != 0.5 {
		t.Errorf("right leaf = %v, want 0.5", got)
	}
	if importance[0] <= 0 {
		t.Error("split gain not recorded")
	}
}

func TestImportanceNormalized(t *testing.T) {
	store := lapsedAndLoyalStore(15)
	e := NewEngine(testConfig())
	p, err := e.Run(store)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var total float64
	for _, share := range p.Eval.FeatureImportance {
		if share < 0 {
			t.Errorf("negative importance share %v", share)
		}
		total += share
	}
	if total < 0.999 || total > 1.001 {
		t.Errorf("importance shares sum to %v, want 1", total)
	}
}
