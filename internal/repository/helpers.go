package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timeToString formats a time for SQLite storage. Stored values are always
// UTC so lexicographic comparison in range queries matches chronology.
func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nullableFloatToValue converts a *float64 to a storable value, NULL when
// the pointer is nil.
func nullableFloatToValue(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// boolToInt converts a Go bool to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// intToBool converts a SQLite 0/1 to a Go bool.
func intToBool(i int) bool {
	return i != 0
}

// toJSON marshals a value into a TEXT column payload.
func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json column: %w", err)
	}
	return string(data), nil
}

// fromJSON unmarshals a TEXT column payload, treating NULL/empty as absent.
func fromJSON(s sql.NullString, out any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), out); err != nil {
		return fmt.Errorf("decoding json column: %w", err)
	}
	return nil
}

// nowUTC returns the current UTC time formatted as RFC3339.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
