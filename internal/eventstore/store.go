package eventstore

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Store is an immutable, indexed table of normalized events. A new upload
// always produces a new Store; there are no mutation methods post-construction,
// so concurrent readers never observe a half-updated table.
type Store struct {
	id     uuid.UUID
	events []Event

	byUser map[string][]int
	byDay  map[time.Time][]int

	users []string // distinct user IDs, sorted
	days  []time.Time
}

// New builds an indexed store from a normalized event sequence. The slice is
// owned by the store after this call. An empty sequence yields a valid,
// zero-metric store.
func New(events []Event) *Store {
	s := &Store{
		id:     uuid.New(),
		events: events,
		byUser: make(map[string][]int),
		byDay:  make(map[time.Time][]int),
	}

	for i := range events {
		e := &events[i]
		s.byUser[e.UserID] = append(s.byUser[e.UserID], i)
		day := e.Day()
		s.byDay[day] = append(s.byDay[day], i)
	}

	s.users = make([]string, 0, len(s.byUser))
	for u := range s.byUser {
		s.users = append(s.users, u)
	}
	sort.Strings(s.users)

	s.days = make([]time.Time, 0, len(s.byDay))
	for d := range s.byDay {
		s.days = append(s.days, d)
	}
	sort.Slice(s.days, func(i, j int) bool { return s.days[i].Before(s.days[j]) })

	return s
}

// ID identifies this build of the store. Derived artifacts (segments, churn
// scores) carry it so stale results can be detected after a new upload.
func (s *Store) ID() uuid.UUID { return s.id }

// Len returns the number of events.
func (s *Store) Len() int { return len(s.events) }

// Users returns the distinct user IDs, sorted.
func (s *Store) Users() []string { return s.users }

// Days returns the distinct UTC day buckets with at least one event, ascending.
func (s *Store) Days() []time.Time { return s.days }

// Span returns the first and last day buckets. ok is false for an empty store.
func (s *Store) Span() (first, last time.Time, ok bool) {
	if len(s.days) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.days[0], s.days[len(s.days)-1], true
}

// All returns a view over every event in arrival order.
func (s *Store) All() View {
	idx := make([]int, len(s.events))
	for i := range idx {
		idx[i] = i
	}
	return View{store: s, idx: idx}
}

// EventsForUser returns a lazy view over one user's events in arrival order.
func (s *Store) EventsForUser(userID string) View {
	return View{store: s, idx: s.byUser[userID]}
}

// EventsInRange returns a lazy view over events whose day bucket falls in
// [start, end] (inclusive, UTC calendar days), in arrival order.
func (s *Store) EventsInRange(start, end time.Time) View {
	startDay, endDay := DayOf(start), DayOf(end)
	var idx []int
	for _, d := range s.days {
		if d.Before(startDay) || d.After(endDay) {
			continue
		}
		idx = append(idx, s.byDay[d]...)
	}
	sort.Ints(idx)
	return View{store: s, idx: idx}
}

// EventsMatching returns a lazy view over events satisfying the predicate.
func (s *Store) EventsMatching(pred func(*Event) bool) View {
	var idx []int
	for i := range s.events {
		if pred(&s.events[i]) {
			idx = append(idx, i)
		}
	}
	return View{store: s, idx: idx}
}

// View is a read-only window over a subset of a store's events. Views share
// the store's backing array; they are index lists, never copies.
type View struct {
	store *Store
	idx   []int
}

// Len returns the number of events in the view.
func (v View) Len() int { return len(v.idx) }

// At returns the i-th event of the view. The pointer aliases the store's
// backing array and must not be written through.
func (v View) At(i int) *Event { return &v.store.events[v.idx[i]] }

// Each calls fn for every event in the view until fn returns false.
func (v View) Each(fn func(*Event) bool) {
	for _, i := range v.idx {
		if !fn(&v.store.events[i]) {
			return
		}
	}
}

// Where narrows the view with an additional predicate.
func (v View) Where(pred func(*Event) bool) View {
	var idx []int
	for _, i := range v.idx {
		if pred(&v.store.events[i]) {
			idx = append(idx, i)
		}
	}
	return View{store: v.store, idx: idx}
}

// DistinctUsers returns the number of distinct user IDs in the view.
func (v View) DistinctUsers() int {
	seen := make(map[string]struct{})
	for _, i := range v.idx {
		seen[v.store.events[i].UserID] = struct{}{}
	}
	return len(seen)
}
