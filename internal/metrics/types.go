package metrics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/playerpulse/internal/eventstore"
)

// Grain is the time bucketing granularity.
type Grain string

const (
	GrainDay   Grain = "day"
	GrainWeek  Grain = "week"
	GrainMonth Grain = "month"
)

// Filter restricts a metric computation to a window and optional dimensions.
// The zero Filter means "whole store, all devices, all segments".
type Filter struct {
	Start   time.Time             `json:"start,omitempty"`
	End     time.Time             `json:"end,omitempty"`
	Device  eventstore.DeviceType `json:"device,omitempty"`
	Segment string                `json:"segment,omitempty"`
}

// CacheKey builds a cache key covering the full filter tuple plus store
// identity, so series for different filters can never collide.
func (f Filter) CacheKey(storeID uuid.UUID, metric string, grain Grain) string {
	return fmt.Sprintf("series:%s:%s:%s:%d:%d:%s:%s",
		storeID, metric, grain,
		f.Start.UTC().Unix(), f.End.UTC().Unix(),
		f.Device, f.Segment,
	)
}

// Point is one (date, value) pair. A nil Value means the metric is undefined
// at that date (zero denominator), which is distinct from zero.
type Point struct {
	Date  time.Time `json:"date"`
	Value *float64  `json:"value"`
}

// Series is a named metric time series under one fixed filter and grain.
type Series struct {
	Metric string  `json:"metric"`
	Grain  Grain   `json:"grain"`
	Filter Filter  `json:"filter"`
	Points []Point `json:"points"`
}

// Float is a convenience for building nullable point values.
func Float(v float64) *float64 { return &v }

// Summary holds whole-window aggregates for one filter.
type Summary struct {
	TotalRevenue float64  `json:"total_revenue"`
	ActiveUsers  int      `json:"active_users"`
	PayingUsers  int      `json:"paying_users"`
	ARPPU        *float64 `json:"arppu"` // nil when there are no paying users
	ARPDAU       float64  `json:"arpdau"`
}

// bucketStart truncates a time to the start of its grain bucket, using UTC
// calendar boundaries. Weeks start on Monday.
func bucketStart(t time.Time, grain Grain) time.Time {
	d := eventstore.DayOf(t)
	switch grain {
	case GrainWeek:
		weekday := int(d.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return d.AddDate(0, 0, -(weekday - 1))
	case GrainMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// nextBucket advances a bucket start by one grain step.
func nextBucket(t time.Time, grain Grain) time.Time {
	switch grain {
	case GrainWeek:
		return t.AddDate(0, 0, 7)
	case GrainMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
