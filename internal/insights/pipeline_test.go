package insights

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/eventstore"
)

func testPipeline() *Pipeline {
	cfg := &config.Config{}
	cfg.Metrics.ActivityEvents = []string{"session_start", "login", "purchase"}
	cfg.Segmentation = config.SegmentationConfig{
		Clusters: 4, Seed: 42, MaxIterations: 100, MinSessions: 3,
	}
	cfg.Churn = config.ChurnConfig{
		HorizonDays: 7, MinHistoryDays: 3, Rounds: 50, MaxDepth: 3,
		LearningRate: 0.1, TestFraction: 0.2, Seed: 42,
		LowThreshold: 0.3, HighThreshold: 0.7, MinAccuracy: 0.6,
	}
	cfg.Anomaly = config.AnomalyConfig{Window: 14, Sigma: 3}
	return NewPipeline(cfg)
}

func sessionEvent(userID string, name eventstore.EventName, d int, revenue float64) eventstore.Event {
	return eventstore.Event{
		UserID:    userID,
		Name:      name,
		Category:  eventstore.Categorize(name),
		Revenue:   revenue,
		Timestamp: time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC),
	}
}

// richDataset builds 15 users that lapse after day 5 and 15 paying users
// active through day 30, enough history for every component.
func richDataset() []eventstore.Event {
	var events []eventstore.Event
	for u := 0; u < 15; u++ {
		lapsed := fmt.Sprintf("lapsed-%02d", u)
		for d := 1; d <= 5; d++ {
			events = append(events, sessionEvent(lapsed, eventstore.EventSessionStart, d, 0))
		}
		loyal := fmt.Sprintf("loyal-%02d", u)
		for d := 1; d <= 30; d++ {
			events = append(events, sessionEvent(loyal, eventstore.EventSessionStart, d, 0))
		}
		for d := 1; d <= 5; d++ {
			events = append(events, sessionEvent(loyal, eventstore.EventPurchase, d, 10))
		}
	}
	return events
}

func TestBuildRichDatasetAllComponentsOK(t *testing.T) {
	p := testPipeline()
	s := p.Build(context.Background(), richDataset(), nil)

	for _, c := range []string{ComponentMetrics, ComponentSegments, ComponentChurn, ComponentAnomalies} {
		if got := s.StatusOf(c); got != StatusOK {
			t.Errorf("%s status = %s (%s), want ok",
				c, got, s.Report.Components[c].Detail)
		}
	}
	if s.Segments == nil {
		t.Fatal("segments missing")
	}
	if s.Churn == nil {
		t.Fatal("churn prediction missing")
	}
	if s.Report.TotalUsers != 30 {
		t.Errorf("total users = %d, want 30", s.Report.TotalUsers)
	}
}

func TestBuildEmptyDatasetUnavailableNotPanic(t *testing.T) {
	p := testPipeline()
	s := p.Build(context.Background(), nil, nil)

	for _, c := range []string{ComponentMetrics, ComponentSegments, ComponentChurn, ComponentAnomalies} {
		if got := s.StatusOf(c); got != StatusUnavailable {
			t.Errorf("%s status = %s, want unavailable", c, got)
		}
	}

	// Every read path must serve structured emptiness, never panic.
	d := s.Digest()
	if d.TotalEvents != 0 || d.TotalUsers != 0 {
		t.Errorf("digest = %+v, want zeros", d)
	}
	if d.ARPPU != nil {
		t.Error("ARPPU on empty dataset must be nil")
	}
}

func TestBuildExpiredContextDegrades(t *testing.T) {
	p := testPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := p.Build(ctx, richDataset(), nil)
	for _, c := range []string{ComponentSegments, ComponentChurn, ComponentAnomalies} {
		r := s.Report.Components[c]
		if r.Status != StatusDegraded || r.Detail != "computation timed out" {
			t.Errorf("%s = %+v, want degraded timeout", c, r)
		}
	}
}

func TestBuildDigest(t *testing.T) {
	p := testPipeline()
	s := p.Build(context.Background(), richDataset(), nil)
	d := s.Digest()

	if d.PayingUsers != 15 {
		t.Errorf("paying users = %d, want 15", d.PayingUsers)
	}
	if d.Revenue != 15*5*10 {
		t.Errorf("revenue = %v, want 750", d.Revenue)
	}
	if d.ARPPU == nil || *d.ARPPU != 50 {
		t.Errorf("arppu = %v, want 50", d.ARPPU)
	}
	if d.Churn == nil {
		t.Fatal("churn digest missing")
	}
	if d.Churn.TopFeature == "" {
		t.Error("top feature not set")
	}
	if len(d.Segments) != 4 {
		t.Errorf("segment digests = %d, want 4", len(d.Segments))
	}
}

func TestAggregatorSwap(t *testing.T) {
	a := NewAggregator(testPipeline())

	if _, err := a.Current(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}

	first := a.Ingest(context.Background(), richDataset(), nil)
	got, err := a.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got.ID() != first.ID() {
		t.Error("current session is not the ingested one")
	}

	second := a.Ingest(context.Background(), richDataset(), nil)
	got, _ = a.Current()
	if got.ID() != second.ID() || got.ID() == first.ID() {
		t.Error("second ingest did not swap the session")
	}

	// The first session stays fully usable after the swap.
	if first.Report.TotalUsers != 30 {
		t.Error("old session mutated by swap")
	}
}
