package schema

import "fmt"

// RawTable is a well-formed tabular dataset as delivered by the upload
// collaborator: a header row plus string-valued data rows.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// CanonicalField is a normalized field name in the Event schema.
type CanonicalField string

const (
	FieldUserID    CanonicalField = "user_id"
	FieldEventName CanonicalField = "event_name"
	FieldTimestamp CanonicalField = "timestamp"
	FieldRevenue   CanonicalField = "revenue"
	FieldDevice    CanonicalField = "device_type"
	FieldSessionID CanonicalField = "session_id"
	FieldCountry   CanonicalField = "country"
	FieldAge       CanonicalField = "age"
	FieldGender    CanonicalField = "gender"
)

// requiredFields must resolve to a source column or normalization aborts.
var requiredFields = []CanonicalField{FieldUserID, FieldEventName, FieldTimestamp}

// SchemaError indicates a required canonical field could not be resolved
// against the source columns. Fatal: the run aborts.
type SchemaError struct {
	Field CanonicalField
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: no source column found for required field %q", e.Field)
}

// DataQualityError indicates the majority of rows were unparsable. Fatal.
type DataQualityError struct {
	TotalRows   int
	DroppedRows int
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %d of %d rows unparsable", e.DroppedRows, e.TotalRows)
}

// Report summarizes one normalization run.
type Report struct {
	TotalRows      int                    `json:"total_rows"`
	ImportedRows   int                    `json:"imported_rows"`
	DroppedRows    int                    `json:"dropped_rows"`
	CoercedFields  map[CanonicalField]int `json:"coerced_fields"`
	ResolvedFields map[CanonicalField]string `json:"resolved_fields"`
}

func newReport() *Report {
	return &Report{
		CoercedFields:  make(map[CanonicalField]int),
		ResolvedFields: make(map[CanonicalField]string),
	}
}
