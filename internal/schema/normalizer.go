package schema

import (
	"strconv"
	"time"

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/eventstore"
	"github.com/ignite/playerpulse/internal/pkg/logger"
)

// Normalizer converts raw tabular datasets into the canonical Event schema
// using a configurable alias table and timestamp format list.
type Normalizer struct {
	cfg config.SchemaConfig
}

// NewNormalizer creates a normalizer from schema configuration.
func NewNormalizer(cfg config.SchemaConfig) *Normalizer {
	if len(cfg.Aliases) == 0 {
		cfg.Aliases = config.DefaultAliases()
	}
	return &Normalizer{cfg: cfg}
}

// Normalize maps, coerces and validates every row of the table. Rows with an
// unparsable timestamp or a blank user_id are dropped and counted; if the
// dropped fraction exceeds MaxDropRatio the whole run fails with
// DataQualityError. Negative or non-numeric revenue is clamped to zero and
// counted as a coercion, not dropped.
func (n *Normalizer) Normalize(table *RawTable) ([]eventstore.Event, *Report, error) {
	mapping, err := MapColumns(table.Columns, n.cfg.Aliases)
	if err != nil {
		return nil, nil, err
	}

	report := newReport()
	report.TotalRows = len(table.Rows)
	for field, idx := range mapping.FieldIdx {
		report.ResolvedFields[field] = table.Columns[idx]
	}

	events := make([]eventstore.Event, 0, len(table.Rows))
	for _, row := range table.Rows {
		ev, ok := n.normalizeRow(row, mapping, report)
		if !ok {
			report.DroppedRows++
			continue
		}
		events = append(events, ev)
	}
	report.ImportedRows = len(events)

	if report.TotalRows > 0 {
		ratio := float64(report.DroppedRows) / float64(report.TotalRows)
		if ratio > n.cfg.MaxDropRatio {
			return nil, report, &DataQualityError{
				TotalRows:   report.TotalRows,
				DroppedRows: report.DroppedRows,
			}
		}
	}

	logger.Info("normalization complete",
		"total_rows", report.TotalRows,
		"imported", report.ImportedRows,
		"dropped", report.DroppedRows,
	)

	return events, report, nil
}

func (n *Normalizer) normalizeRow(row []string, m *ColumnMapping, report *Report) (eventstore.Event, bool) {
	var ev eventstore.Event

	ev.UserID = m.Value(row, FieldUserID)
	if ev.UserID == "" {
		return ev, false
	}

	rawName := m.Value(row, FieldEventName)
	if rawName == "" {
		return ev, false
	}
	ev.Name = eventstore.ParseEventName(rawName)
	ev.Category = eventstore.Categorize(ev.Name)

	ts, ok := n.parseTimestamp(m.Value(row, FieldTimestamp))
	if !ok {
		return ev, false
	}
	ev.Timestamp = ts

	if raw := m.Value(row, FieldRevenue); raw != "" {
		rev, err := strconv.ParseFloat(raw, 64)
		if err != nil || rev < 0 {
			report.CoercedFields[FieldRevenue]++
			rev = 0
		}
		ev.Revenue = rev
	}

	ev.Device = eventstore.ParseDeviceType(m.Value(row, FieldDevice))
	ev.SessionID = m.Value(row, FieldSessionID)

	if c := m.Value(row, FieldCountry); c != "" {
		ev.Country = c
	} else {
		ev.Country = "unknown"
	}

	if raw := m.Value(row, FieldAge); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil || age < 0 {
			report.CoercedFields[FieldAge]++
		} else {
			ev.Age = age
		}
	}
	ev.Gender = m.Value(row, FieldGender)

	return ev, true
}

// parseTimestamp tries each accepted format in order and converts to UTC.
func (n *Normalizer) parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, format := range n.cfg.TimestampFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t.UTC(), true
		}
	}
	// Epoch seconds show up in some SDK exports.
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 1_000_000_000 && secs < 10_000_000_000 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
