package metrics

import (
	"time"

	"github.com/ignite/playerpulse/internal/eventstore"
)

// FunnelStep is one named step of an ordered conversion funnel.
type FunnelStep struct {
	Name  string
	Match func(*eventstore.Event) bool
}

// StepByEvent builds a funnel step matching one canonical event name.
func StepByEvent(name string, event eventstore.EventName) FunnelStep {
	return FunnelStep{
		Name:  name,
		Match: func(e *eventstore.Event) bool { return e.Name == event },
	}
}

// FunnelStepResult holds one step's outcome.
type FunnelStepResult struct {
	Step       string  `json:"step"`
	Users      int     `json:"users"`
	Conversion float64 `json:"conversion_rate"` // percent relative to step 1
	DropOff    float64 `json:"drop_off_rate"`   // percent relative to previous step
}

// Funnel computes strict-ordered funnel conversion inside the filter window.
// A user counts at step i only if they have a matching event at or after the
// time of their qualifying event for step i-1; out-of-order completions do
// not count. Step counts are therefore non-increasing by construction.
func (e *Engine) Funnel(f Filter, steps []FunnelStep) []FunnelStepResult {
	if len(steps) == 0 {
		return nil
	}

	// Per-user event times within the window, arrival order preserved.
	userEvents := make(map[string][]*eventstore.Event)
	e.forEachInWindow(f, func(ev *eventstore.Event) {
		userEvents[ev.UserID] = append(userEvents[ev.UserID], ev)
	})

	counts := make([]int, len(steps))
	for _, events := range userEvents {
		depth := e.funnelDepth(events, steps)
		for i := 0; i < depth; i++ {
			counts[i]++
		}
	}

	results := make([]FunnelStepResult, len(steps))
	for i, step := range steps {
		r := FunnelStepResult{Step: step.Name, Users: counts[i], Conversion: 100, DropOff: 0}
		if i > 0 {
			if counts[0] > 0 {
				r.Conversion = 100 * float64(counts[i]) / float64(counts[0])
			} else {
				r.Conversion = 0
			}
			if counts[i-1] > 0 {
				r.DropOff = 100 * float64(counts[i-1]-counts[i]) / float64(counts[i-1])
			}
		} else if counts[0] == 0 {
			r.Conversion = 0
		}
		results[i] = r
	}
	return results
}

// funnelDepth returns how many consecutive steps, starting at step 1, the
// user satisfied in order. The earliest qualifying event is chosen at each
// step so later steps get the widest remaining window.
func (e *Engine) funnelDepth(events []*eventstore.Event, steps []FunnelStep) int {
	var after time.Time
	depth := 0
	for _, step := range steps {
		found := false
		var best time.Time
		for _, ev := range events {
			if ev.Timestamp.Before(after) || !step.Match(ev) {
				continue
			}
			if !found || ev.Timestamp.Before(best) {
				found = true
				best = ev.Timestamp
			}
		}
		if !found {
			break
		}
		after = best
		depth++
	}
	return depth
}
