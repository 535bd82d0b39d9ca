package pty

import "fmt"

// Geometry bounds applied at creation and on every resize.
const (
	MinCols = 20
	MaxCols = 500
	MinRows = 5
	MaxRows = 200
)

// ValidationError reports a terminal dimension outside its allowed range.
type ValidationError struct {
	Field string `json:"field"`
	Value int    `json:"value"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %d (must be between %d and %d)", e.Field, e.Value, e.Min, e.Max)
}

// ValidateSize rejects geometries outside [MinCols, MaxCols] x [MinRows, MaxRows].
// Columns are checked first.
func ValidateSize(cols, rows int) error {
	if cols < MinCols || cols > MaxCols {
		return &ValidationError{Field: "cols", Value: cols, Min: MinCols, Max: MaxCols}
	}
	if rows < MinRows || rows > MaxRows {
		return &ValidationError{Field: "rows", Value: rows, Min: MinRows, Max: MaxRows}
	}
	return nil
}
