package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/metrics"
)

// Direction classifies which side of the baseline an anomaly falls on.
type Direction string

const (
	Spike Direction = "spike"
	Drop  Direction = "drop"
)

// Anomaly is one flagged point of a metric series.
type Anomaly struct {
	Date         time.Time `json:"date"`
	Metric       string    `json:"metric"`
	Observed     float64   `json:"observed"`
	ExpectedLow  float64   `json:"expected_low"`
	ExpectedHigh float64   `json:"expected_high"`
	ZScore       float64   `json:"z_score"`
	Direction    Direction `json:"direction"`
}

// Detector flags points deviating from a rolling baseline.
type Detector struct {
	window int
	sigma  float64
}

// NewDetector creates a detector from anomaly configuration.
func NewDetector(cfg config.AnomalyConfig) *Detector {
	return &Detector{window: cfg.Window, sigma: cfg.Sigma}
}

// Detect flags points where |value - rolling mean| > sigma * rolling stddev.
// The baseline is the trailing window excluding the tested point, so a point
// never dilutes its own baseline. Points inside the first full window are
// never flagged, and null points neither flag nor enter the baseline.
func (d *Detector) Detect(series metrics.Series) []Anomaly {
	type sample struct {
		date  time.Time
		value float64
	}
	var samples []sample
	for _, p := range series.Points {
		if p.Value == nil {
			continue
		}
		samples = append(samples, sample{date: p.Date, value: *p.Value})
	}

	var out []Anomaly
	for i := d.window; i < len(samples); i++ {
		mean, stddev := meanStddev(samples[i-d.window:i], func(s sample) float64 { return s.value })
		if stddev == 0 {
			// A flat baseline gives no scale to judge deviation against.
			continue
		}
		v := samples[i].value
		z := (v - mean) / stddev
		if math.Abs(v-mean) <= d.sigma*stddev {
			continue
		}
		a := Anomaly{
			Date:         samples[i].date,
			Metric:       series.Metric,
			Observed:     v,
			ExpectedLow:  mean - d.sigma*stddev,
			ExpectedHigh: mean + d.sigma*stddev,
			ZScore:       z,
			Direction:    Spike,
		}
		if z < 0 {
			a.Direction = Drop
		}
		out = append(out, a)
	}
	return out
}

// DetectAll runs detection over every tracked series and returns the flags
// ordered by date, then metric name.
func (d *Detector) DetectAll(series []metrics.Series) []Anomaly {
	var out []Anomaly
	for _, s := range series {
		out = append(out, d.Detect(s)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

func meanStddev[T any](xs []T, value func(T) float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += value(x)
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		dv := value(x) - mean
		ss += dv * dv
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}
