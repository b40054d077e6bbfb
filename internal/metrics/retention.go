package metrics

import (
	"time"
)

// Retention returns, per cohort day D in the window, the fraction of users
// first active on D who have at least one activity event on D+n. Every user
// belongs to exactly one cohort: the day of their first activity. Cohort days
// with no members are omitted.
func (e *Engine) Retention(f Filter, n int) Series {
	series := Series{Metric: "retention", Grain: GrainDay, Filter: f}
	start, end, ok := e.effectiveWindow(f)
	if !ok {
		return series
	}

	first := e.firstActivityDays(f)
	activityDays := e.activityDaysByUser(f)

	cohortSize := make(map[time.Time]int)
	retained := make(map[time.Time]int)
	for user, day := range first {
		if day.Before(start) || day.After(end) {
			continue
		}
		cohortSize[day]++
		target := day.AddDate(0, 0, n)
		if _, ok := activityDays[user][target]; ok {
			retained[day]++
		}
	}

	for _, day := range sortedDays(cohortSize) {
		frac := float64(retained[day]) / float64(cohortSize[day])
		series.Points = append(series.Points, Point{Date: day, Value: Float(frac)})
	}
	return series
}

// CohortRow is one row of the cohort retention table: a first-seen day, its
// size, and retention fractions for periods 0..N. Period retention uses
// "active on or after D+period" so rows decay monotonically.
type CohortRow struct {
	CohortDay time.Time `json:"cohort_day"`
	Size      int       `json:"size"`
	Retention []float64 `json:"retention"`
}

// CohortTable builds the cohort retention table for up to maxPeriods periods
// of periodDays days each.
func (e *Engine) CohortTable(f Filter, maxPeriods, periodDays int) []CohortRow {
	start, end, ok := e.effectiveWindow(f)
	if !ok {
		return nil
	}
	if periodDays <= 0 {
		periodDays = 1
	}

	first := e.firstActivityDays(f)
	activityDays := e.activityDaysByUser(f)

	// last activity day per user, for the "on or after" cumulative check
	lastDay := make(map[string]time.Time)
	for user, days := range activityDays {
		for d := range days {
			if d.After(lastDay[user]) {
				lastDay[user] = d
			}
		}
	}

	cohorts := make(map[time.Time][]string)
	for user, day := range first {
		if day.Before(start) || day.After(end) {
			continue
		}
		cohorts[day] = append(cohorts[day], user)
	}

	sizes := make(map[time.Time]int, len(cohorts))
	for d, users := range cohorts {
		sizes[d] = len(users)
	}

	var rows []CohortRow
	for _, day := range sortedDays(sizes) {
		users := cohorts[day]
		row := CohortRow{CohortDay: day, Size: len(users)}
		for period := 0; period < maxPeriods; period++ {
			cutoff := day.AddDate(0, 0, period*periodDays)
			if cutoff.After(end) {
				break
			}
			count := 0
			for _, u := range users {
				if !lastDay[u].Before(cutoff) {
					count++
				}
			}
			row.Retention = append(row.Retention, float64(count)/float64(len(users)))
		}
		rows = append(rows, row)
	}
	return rows
}
