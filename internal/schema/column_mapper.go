package schema

import "strings"

// ColumnMapping resolves canonical fields to source column indexes.
type ColumnMapping struct {
	FieldIdx map[CanonicalField]int // canonical field -> column index
	RawNames []string               // original header names
}

// normalizeHeader lowercases a header and strips whitespace and quoting so
// alias comparison is tolerant of source formatting.
func normalizeHeader(h string) string {
	n := strings.ToLower(strings.TrimSpace(h))
	n = strings.Trim(n, "\"'")
	n = strings.ReplaceAll(n, " ", "_")
	n = strings.ReplaceAll(n, "-", "_")
	return n
}

// MapColumns resolves each canonical field against the header row using the
// alias table. For each field the first matching source column wins. Returns
// a SchemaError naming the first required field with no match.
func MapColumns(header []string, aliases map[string][]string) (*ColumnMapping, error) {
	m := &ColumnMapping{
		FieldIdx: make(map[CanonicalField]int, len(aliases)),
		RawNames: header,
	}

	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}

	for field, names := range aliases {
		idx := -1
	scan:
		for i, col := range normalized {
			for _, alias := range names {
				if col == normalizeHeader(alias) {
					idx = i
					break scan
				}
			}
		}
		if idx >= 0 {
			m.FieldIdx[CanonicalField(field)] = idx
		}
	}

	// Fallback: substring scan for user_id, mirroring how messy exports name it.
	if _, ok := m.FieldIdx[FieldUserID]; !ok {
		for i, col := range normalized {
			if strings.Contains(col, "user") || strings.Contains(col, "player") {
				m.FieldIdx[FieldUserID] = i
				break
			}
		}
	}

	for _, req := range requiredFields {
		if _, ok := m.FieldIdx[req]; !ok {
			return nil, &SchemaError{Field: req}
		}
	}

	return m, nil
}

// Value returns the raw cell for a canonical field, or "" when the field is
// unmapped or the row is short.
func (m *ColumnMapping) Value(row []string, field CanonicalField) string {
	idx, ok := m.FieldIdx[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
