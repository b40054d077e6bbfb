package profile

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignite/playerpulse/internal/eventstore"
)

// UserProfile holds engineered per-user aggregates derived from the event
// store. It is rebuilt deterministically for each store and never persisted
// independently of it.
type UserProfile struct {
	UserID string `json:"user_id"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	TotalEvents    int     `json:"total_events"`
	SessionCount   int     `json:"session_count"`
	GameplayEvents int     `json:"gameplay_events"`
	PurchaseCount  int     `json:"purchase_count"`
	TotalRevenue   float64 `json:"total_revenue"`
	AvgRevenue     float64 `json:"avg_revenue"`

	LifetimeDays int `json:"lifetime_days"`
	RecencyDays  int `json:"recency_days"`

	EventsPerDay  float64 `json:"events_per_day"`
	RevenuePerDay float64 `json:"revenue_per_day"`
	IsPaying      bool    `json:"is_paying"`

	DeviceMix map[eventstore.DeviceType]int `json:"device_mix"`
	Country   string                        `json:"country"`
}

// Table is the full profile table for one store build.
type Table struct {
	StoreID uuid.UUID
	// Reference is the anchor for recency: the store's last event day.
	// Using the store rather than the wall clock keeps rebuilds deterministic.
	Reference time.Time
	Profiles  []UserProfile

	byUser map[string]int
}

// Get returns the profile for a user, or nil if unknown.
func (t *Table) Get(userID string) *UserProfile {
	i, ok := t.byUser[userID]
	if !ok {
		return nil
	}
	return &t.Profiles[i]
}

// Len returns the number of profiled users.
func (t *Table) Len() int { return len(t.Profiles) }

// Build derives one profile per distinct user from the store. Output order
// follows the store's sorted user list, so two builds over the same store are
// identical.
func Build(store *eventstore.Store) *Table {
	table := &Table{
		StoreID: store.ID(),
		byUser:  make(map[string]int),
	}
	if _, last, ok := store.Span(); ok {
		table.Reference = last
	}

	for _, userID := range store.Users() {
		p := buildOne(store, userID, table.Reference)
		table.byUser[userID] = len(table.Profiles)
		table.Profiles = append(table.Profiles, p)
	}

	return table
}

func buildOne(store *eventstore.Store, userID string, reference time.Time) UserProfile {
	p := UserProfile{
		UserID:    userID,
		DeviceMix: make(map[eventstore.DeviceType]int),
	}

	sessions := make(map[string]struct{})
	countries := make(map[string]int)

	store.EventsForUser(userID).Each(func(e *eventstore.Event) bool {
		if p.TotalEvents == 0 || e.Timestamp.Before(p.FirstSeen) {
			p.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(p.LastSeen) {
			p.LastSeen = e.Timestamp
		}
		p.TotalEvents++

		switch {
		case e.IsPurchase():
			p.PurchaseCount++
			p.TotalRevenue += e.Revenue
		case e.Category == eventstore.CategoryGameplay:
			p.GameplayEvents++
		}
		if e.Name == eventstore.EventSessionStart {
			p.SessionCount++
		}
		if e.SessionID != "" {
			sessions[e.SessionID] = struct{}{}
		}
		p.DeviceMix[e.Device]++
		if e.Country != "" && e.Country != "unknown" {
			countries[e.Country]++
		}
		return true
	})

	// Distinct session IDs win over session_start counts when present.
	if len(sessions) > p.SessionCount {
		p.SessionCount = len(sessions)
	}

	if p.PurchaseCount > 0 {
		p.AvgRevenue = p.TotalRevenue / float64(p.PurchaseCount)
		p.IsPaying = true
	}

	p.LifetimeDays = int(eventstore.DayOf(p.LastSeen).Sub(eventstore.DayOf(p.FirstSeen)).Hours()/24) + 1
	if !reference.IsZero() {
		p.RecencyDays = int(reference.Sub(eventstore.DayOf(p.LastSeen)).Hours() / 24)
	}
	if p.LifetimeDays > 0 {
		p.EventsPerDay = float64(p.TotalEvents) / float64(p.LifetimeDays)
		p.RevenuePerDay = p.TotalRevenue / float64(p.LifetimeDays)
	}

	best := 0
	for c, n := range countries {
		if n > best || (n == best && (p.Country == "" || c < p.Country)) {
			best = n
			p.Country = c
		}
	}
	if p.Country == "" {
		p.Country = "unknown"
	}

	return p
}
