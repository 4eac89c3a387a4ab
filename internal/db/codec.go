package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// timeLayout is fixed width so stored timestamps sort as strings
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written by hand or by older tools
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// encodeJSON serializes a nested field for storage
func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeList parses a stored JSON array. Missing or malformed values
// become an empty list; the document stays readable.
func decodeList[T any](logger *zap.Logger, id, field string, raw sql.NullString) []T {
	out := []T{}
	if !raw.Valid || raw.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		logger.Warn("malformed stored field, using empty list",
			zap.String("intervention", id),
			zap.String("field", field),
			zap.Error(err))
		return []T{}
	}
	return out
}

// decodeObject parses a stored JSON object, returning the zero value
// when the column is missing or malformed
func decodeObject[T any](logger *zap.Logger, id, field string, raw sql.NullString) T {
	var out T
	if !raw.Valid || raw.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		logger.Warn("malformed stored field, using empty object",
			zap.String("intervention", id),
			zap.String("field", field),
			zap.Error(err))
		var zero T
		return zero
	}
	return out
}

// decodeRaw keeps an opaque JSON blob, dropping it when it is not JSON
func decodeRaw(logger *zap.Logger, id, field string, raw sql.NullString) json.RawMessage {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if !json.Valid([]byte(raw.String)) {
		logger.Warn("malformed stored field, dropping it",
			zap.String("intervention", id),
			zap.String("field", field))
		return nil
	}
	return json.RawMessage(raw.String)
}

func rawOrNil(m json.RawMessage) interface{} {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}

func nullTime(logger *zap.Logger, id, field string, raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		logger.Warn("malformed stored timestamp",
			zap.String("intervention", id),
			zap.String("field", field),
			zap.Error(err))
		return nil
	}
	return &t
}
