package eventstore

import (
	"strings"
	"time"
)

// EventName is the canonical event type enum.
type EventName string

const (
	EventSessionStart  EventName = "session_start"
	EventPurchase      EventName = "purchase"
	EventLevelStart    EventName = "level_start"
	EventLevelComplete EventName = "level_complete"
	EventLogin         EventName = "login"
	EventLogout        EventName = "logout"
	EventCustom        EventName = "custom"
)

// DeviceType is the canonical device enum.
type DeviceType string

const (
	DeviceIOS     DeviceType = "ios"
	DeviceAndroid DeviceType = "android"
	DeviceWeb     DeviceType = "web"
	DeviceUnknown DeviceType = "unknown"
)

// Category groups event names into broad behavioral buckets.
type Category string

const (
	CategoryGameplay Category = "gameplay"
	CategoryPurchase Category = "purchase"
	CategorySystem   Category = "system"
	CategoryOther    Category = "other"
)

// Event is one normalized user action.
type Event struct {
	UserID    string     `json:"user_id"`
	Name      EventName  `json:"event_name"`
	Timestamp time.Time  `json:"timestamp"` // always UTC
	Revenue   float64    `json:"revenue"`   // non-negative, zero for non-monetary events
	Device    DeviceType `json:"device_type"`
	SessionID string     `json:"session_id,omitempty"`
	Country   string     `json:"country,omitempty"`
	Category  Category   `json:"event_category"`
	Age       int        `json:"age,omitempty"`
	Gender    string     `json:"gender,omitempty"`
}

// Day returns the UTC calendar day bucket of the event.
func (e *Event) Day() time.Time {
	return DayOf(e.Timestamp)
}

// IsPurchase reports whether the event is a monetary purchase.
func (e *Event) IsPurchase() bool {
	return e.Name == EventPurchase && e.Revenue > 0
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseEventName maps a raw event string onto the canonical enum.
// Unrecognized names become EventCustom, never an error.
func ParseEventName(raw string) EventName {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "session_start", "sessionstart", "session":
		return EventSessionStart
	case "purchase", "iap", "transaction", "payment":
		return EventPurchase
	case "level_start", "levelstart":
		return EventLevelStart
	case "level_complete", "levelcomplete", "level_end":
		return EventLevelComplete
	case "login", "signin", "sign_in", "signup":
		return EventLogin
	case "logout", "signout", "sign_out":
		return EventLogout
	default:
		return EventCustom
	}
}

// ParseDeviceType maps a raw device string onto the canonical enum.
func ParseDeviceType(raw string) DeviceType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ios", "iphone", "ipad":
		return DeviceIOS
	case "android":
		return DeviceAndroid
	case "web", "browser", "desktop", "pc":
		return DeviceWeb
	default:
		return DeviceUnknown
	}
}

// Categorize assigns the behavioral category for an event name.
func Categorize(name EventName) Category {
	switch name {
	case EventSessionStart, EventLevelStart, EventLevelComplete:
		return CategoryGameplay
	case EventPurchase:
		return CategoryPurchase
	case EventLogin, EventLogout:
		return CategorySystem
	default:
		return CategoryOther
	}
}
