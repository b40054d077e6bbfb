package churn

import (
	"time"

	"github.com/ignite/playerpulse/internal/eventstore"
)

// featureNames index the columns of every feature vector. Order matters: it
// is the contract between vectorAt and the importance report.
var featureNames = []string{
	"recency_days",
	"events_per_day",
	"session_count",
	"total_revenue",
	"purchase_count",
	"lifetime_days",
	"gameplay_events",
}

// vectorAt builds one user's feature vector from events up to and including
// the reference day. Events after the reference are invisible, so training
// features never leak outcome information. ok is false when the user has no
// events in that window.
func vectorAt(store *eventstore.Store, userID string, reference time.Time) ([]float64, bool) {
	var (
		first, last time.Time
		total       int
		sessions    int
		sessionIDs  = make(map[string]struct{})
		revenue     float64
		purchases   int
		gameplay    int
	)

	store.EventsForUser(userID).Each(func(e *eventstore.Event) bool {
		if e.Day().After(reference) {
			return true
		}
		if total == 0 || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
		total++

		switch {
		case e.IsPurchase():
			purchases++
			revenue += e.Revenue
		case e.Category == eventstore.CategoryGameplay:
			gameplay++
		}
		if e.Name == eventstore.EventSessionStart {
			sessions++
		}
		if e.SessionID != "" {
			sessionIDs[e.SessionID] = struct{}{}
		}
		return true
	})

	if total == 0 {
		return nil, false
	}
	if len(sessionIDs) > sessions {
		sessions = len(sessionIDs)
	}

	lifetime := daysBetween(eventstore.DayOf(first), eventstore.DayOf(last)) + 1
	recency := daysBetween(eventstore.DayOf(last), reference)

	return []float64{
		float64(recency),
		float64(total) / float64(lifetime),
		float64(sessions),
		revenue,
		float64(purchases),
		float64(lifetime),
		float64(gameplay),
	}, true
}

// historyDays returns the number of observed days a user has up to the
// reference day, from their first event.
func historyDays(store *eventstore.Store, userID string, reference time.Time) int {
	var first time.Time
	seen := false
	store.EventsForUser(userID).Each(func(e *eventstore.Event) bool {
		if e.Day().After(reference) {
			return true
		}
		if !seen || e.Timestamp.Before(first) {
			first = e.Timestamp
			seen = true
		}
		return true
	})
	if !seen {
		return 0
	}
	return daysBetween(eventstore.DayOf(first), reference) + 1
}

// activeAfter reports whether the user has any event strictly after the day.
func activeAfter(store *eventstore.Store, userID string, day time.Time) bool {
	active := false
	store.EventsForUser(userID).Each(func(e *eventstore.Event) bool {
		if e.Day().After(day) {
			active = true
			return false
		}
		return true
	})
	return active
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
