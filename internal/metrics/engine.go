package metrics

import (
	"sort"
	"time"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/eventstore"
)

// Engine computes activity, revenue, retention, cohort and funnel metrics
// over an immutable event store. All methods are pure and safe to call
// concurrently.
type Engine struct {
	store    *eventstore.Store
	activity map[eventstore.EventName]bool

	// segmentOf resolves a user to a segment label for segment filters.
	// nil disables segment filtering (filter matches nothing).
	segmentOf func(userID string) string
}

// NewEngine creates a metrics engine over a store.
func NewEngine(store *eventstore.Store, cfg config.MetricsConfig) *Engine {
	activity := make(map[eventstore.EventName]bool, len(cfg.ActivityEvents))
	for _, name := range cfg.ActivityEvents {
		activity[eventstore.EventName(name)] = true
	}
	return &Engine{store: store, activity: activity}
}

// SetSegmentLookup wires segment filtering once segmentation has run.
func (e *Engine) SetSegmentLookup(fn func(userID string) string) {
	e.segmentOf = fn
}

// effectiveWindow clamps the filter window to the store span. ok is false
// when the store is empty or the window misses it entirely.
func (e *Engine) effectiveWindow(f Filter) (start, end time.Time, ok bool) {
	first, last, hasData := e.store.Span()
	if !hasData {
		return time.Time{}, time.Time{}, false
	}
	start, end = first, last
	if !f.Start.IsZero() && eventstore.DayOf(f.Start).After(start) {
		start = eventstore.DayOf(f.Start)
	}
	if !f.End.IsZero() && eventstore.DayOf(f.End).Before(end) {
		end = eventstore.DayOf(f.End)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// matches applies the dimensional parts of the filter (device, segment).
func (e *Engine) matches(f Filter, ev *eventstore.Event) bool {
	if f.Device != "" && ev.Device != f.Device {
		return false
	}
	if f.Segment != "" {
		if e.segmentOf == nil || e.segmentOf(ev.UserID) != f.Segment {
			return false
		}
	}
	return true
}

// isActivity reports whether the event counts toward active-user metrics.
func (e *Engine) isActivity(ev *eventstore.Event) bool {
	return e.activity[ev.Name]
}

// forEachInWindow walks the filtered window once in arrival order.
func (e *Engine) forEachInWindow(f Filter, fn func(*eventstore.Event)) {
	start, end, ok := e.effectiveWindow(f)
	if !ok {
		return
	}
	e.store.EventsInRange(start, end).Each(func(ev *eventstore.Event) bool {
		if e.matches(f, ev) {
			fn(ev)
		}
		return true
	})
}

// ActiveUsers returns distinct users with at least one activity event per
// bucket. DAU, WAU and MAU are the day, week and month instances of this
// primitive. Buckets inside the window with no activity carry an explicit
// zero rather than being omitted.
func (e *Engine) ActiveUsers(f Filter, grain Grain) Series {
	buckets := make(map[time.Time]map[string]struct{})
	e.forEachInWindow(f, func(ev *eventstore.Event) {
		if !e.isActivity(ev) {
			return
		}
		b := bucketStart(ev.Timestamp, grain)
		if buckets[b] == nil {
			buckets[b] = make(map[string]struct{})
		}
		buckets[b][ev.UserID] = struct{}{}
	})

	return e.fillSeries("active_users", f, grain, func(b time.Time) *float64 {
		return Float(float64(len(buckets[b])))
	})
}

// Revenue returns total purchase revenue per bucket.
func (e *Engine) Revenue(f Filter, grain Grain) Series {
	buckets := make(map[time.Time]float64)
	e.forEachInWindow(f, func(ev *eventstore.Event) {
		if ev.IsPurchase() {
			buckets[bucketStart(ev.Timestamp, grain)] += ev.Revenue
		}
	})

	return e.fillSeries("revenue", f, grain, func(b time.Time) *float64 {
		return Float(buckets[b])
	})
}

// ARPPU returns revenue per distinct paying user per bucket. A bucket with
// zero paying users reports nil, never zero: "no payers" is not "$0 average".
func (e *Engine) ARPPU(f Filter, grain Grain) Series {
	type bucket struct {
		revenue float64
		payers  map[string]struct{}
	}
	buckets := make(map[time.Time]*bucket)
	e.forEachInWindow(f, func(ev *eventstore.Event) {
		if !ev.IsPurchase() {
			return
		}
		b := bucketStart(ev.Timestamp, grain)
		if buckets[b] == nil {
			buckets[b] = &bucket{payers: make(map[string]struct{})}
		}
		buckets[b].revenue += ev.Revenue
		buckets[b].payers[ev.UserID] = struct{}{}
	})

	return e.fillSeries("arppu", f, grain, func(b time.Time) *float64 {
		bk := buckets[b]
		if bk == nil || len(bk.payers) == 0 {
			return nil
		}
		return Float(bk.revenue / float64(len(bk.payers)))
	})
}

// ARPDAU returns revenue per active user per bucket. Zero actives implies
// zero revenue, so the value is 0 rather than undefined.
func (e *Engine) ARPDAU(f Filter, grain Grain) Series {
	revenue := make(map[time.Time]float64)
	actives := make(map[time.Time]map[string]struct{})
	e.forEachInWindow(f, func(ev *eventstore.Event) {
		b := bucketStart(ev.Timestamp, grain)
		if ev.IsPurchase() {
			revenue[b] += ev.Revenue
		}
		if e.isActivity(ev) {
			if actives[b] == nil {
				actives[b] = make(map[string]struct{})
			}
			actives[b][ev.UserID] = struct{}{}
		}
	})

	return e.fillSeries("arpdau", f, grain, func(b time.Time) *float64 {
		n := len(actives[b])
		if n == 0 {
			return Float(0)
		}
		return Float(revenue[b] / float64(n))
	})
}

// WindowSummary computes whole-window aggregates under one filter.
func (e *Engine) WindowSummary(f Filter) Summary {
	var s Summary
	actives := make(map[string]struct{})
	payers := make(map[string]struct{})

	e.forEachInWindow(f, func(ev *eventstore.Event) {
		if e.isActivity(ev) {
			actives[ev.UserID] = struct{}{}
		}
		if ev.IsPurchase() {
			payers[ev.UserID] = struct{}{}
			s.TotalRevenue += ev.Revenue
		}
	})

	s.ActiveUsers = len(actives)
	s.PayingUsers = len(payers)
	if s.PayingUsers > 0 {
		s.ARPPU = Float(s.TotalRevenue / float64(s.PayingUsers))
	}
	if s.ActiveUsers > 0 {
		s.ARPDAU = s.TotalRevenue / float64(s.ActiveUsers)
	}
	return s
}

// fillSeries emits one point per grain bucket across the effective window,
// in ascending date order.
func (e *Engine) fillSeries(metric string, f Filter, grain Grain, value func(time.Time) *float64) Series {
	series := Series{Metric: metric, Grain: grain, Filter: f}
	start, end, ok := e.effectiveWindow(f)
	if !ok {
		return series
	}
	for b := bucketStart(start, grain); !b.After(end); b = nextBucket(b, grain) {
		series.Points = append(series.Points, Point{Date: b, Value: value(b)})
	}
	return series
}

// firstActivityDays returns each user's first activity day, restricted to the
// dimensional filter but not the date window: cohort membership is fixed at
// first-seen day regardless of the viewing window.
func (e *Engine) firstActivityDays(f Filter) map[string]time.Time {
	first := make(map[string]time.Time)
	e.store.All().Each(func(ev *eventstore.Event) bool {
		if !e.isActivity(ev) || !e.matches(Filter{Device: f.Device, Segment: f.Segment}, ev) {
			return true
		}
		day := ev.Day()
		if cur, ok := first[ev.UserID]; !ok || day.Before(cur) {
			first[ev.UserID] = day
		}
		return true
	})
	return first
}

// activityDaysByUser returns the set of activity days per user under the
// dimensional filter.
func (e *Engine) activityDaysByUser(f Filter) map[string]map[time.Time]struct{} {
	days := make(map[string]map[time.Time]struct{})
	e.store.All().Each(func(ev *eventstore.Event) bool {
		if !e.isActivity(ev) || !e.matches(Filter{Device: f.Device, Segment: f.Segment}, ev) {
			return true
		}
		if days[ev.UserID] == nil {
			days[ev.UserID] = make(map[time.Time]struct{})
		}
		days[ev.UserID][ev.Day()] = struct{}{}
		return true
	})
	return days
}

func sortedDays(m map[time.Time]int) []time.Time {
	out := make([]time.Time, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
