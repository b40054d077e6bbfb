package insights

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ignite/playerpulse/internal/eventstore"
	"github.com/ignite/playerpulse/internal/schema"
)

// ErrNoSession is returned when no dataset has been ingested yet.
var ErrNoSession = errors.New("insights: no dataset loaded")

// Aggregator owns the live session and rebuilds it on ingest. The swap is a
// single atomic pointer store: requests in flight finish against the session
// they started with, and new requests see the new build immediately.
type Aggregator struct {
	pipeline *Pipeline
	current  atomic.Pointer[Session]
}

// NewAggregator creates an aggregator over a pipeline.
func NewAggregator(p *Pipeline) *Aggregator {
	return &Aggregator{pipeline: p}
}

// Ingest builds a session from a normalized batch and makes it current.
func (a *Aggregator) Ingest(ctx context.Context, events []eventstore.Event, quality *schema.Report) *Session {
	s := a.pipeline.Build(ctx, events, quality)
	a.current.Store(s)
	return s
}

// Current returns the live session, or ErrNoSession before the first ingest.
func (a *Aggregator) Current() (*Session, error) {
	s := a.current.Load()
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
