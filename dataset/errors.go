package dataset

import (
	"fmt"
	"strings"
)

// DataLoadError reports a dataset that is missing, unreadable or malformed.
type DataLoadError struct {
	Path string
	Err  error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("load dataset %s: %v", e.Path, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// SchemaError reports required columns that are absent, or present but empty.
type SchemaError struct {
	Missing []string
	Empty   []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Empty) > 0 {
		parts = append(parts, "columns without values: "+strings.Join(e.Empty, ", "))
	}
	return "dataset schema: " + strings.Join(parts, "; ")
}
