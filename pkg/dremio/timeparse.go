package dremio

import (
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
)

// timestampLayouts are the string encodings observed across the two
// dialects: RFC 3339 from the legacy REST payloads, and the system
// table's space-separated form (with or without fractional seconds and
// zone offset).
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts either an ISO-8601 string or an
// epoch-millisecond number and returns the parsed instant. ok is false
// for absent, empty, or unparsable values; callers are expected to
// omit derived fields rather than fail.
func ParseTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case string:
		return parseTimestampString(v)
	case gojson.Number:
		ms, err := v.Int64()
		if err != nil {
			// Fractional epoch millis
			f, ferr := v.Float64()
			if ferr != nil {
				return time.Time{}, false
			}
			ms = int64(f)
		}
		return time.UnixMilli(ms).UTC(), true
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	case int64:
		return time.UnixMilli(v).UTC(), true
	case int:
		return time.UnixMilli(int64(v)).UTC(), true
	default:
		return time.Time{}, false
	}
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// DurationMillis computes the span between two raw timestamp values in
// milliseconds. Returns nil when either side is absent or unparsable;
// the duration is omitted rather than surfaced as an error.
func DurationMillis(start, end interface{}) *int64 {
	s, ok := ParseTimestamp(start)
	if !ok {
		return nil
	}
	e, ok := ParseTimestamp(end)
	if !ok {
		return nil
	}
	ms := e.Sub(s).Milliseconds()
	return &ms
}

// FlexTime is a timestamp field that tolerates both of the provider's
// encodings (ISO-8601 string or epoch milliseconds). Unparsable values
// decode to the zero FlexTime instead of failing the whole record.
type FlexTime struct {
	Time  time.Time
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler. It never returns an error
// for a syntactically valid JSON value; bad encodings simply leave the
// field unset.
func (f *FlexTime) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := gojson.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		f.Time, f.Valid = time.Time{}, false
		return nil //nolint:nilerr // tolerate malformed timestamps
	}
	f.Time, f.Valid = ParseTimestamp(raw)
	return nil
}

// MarshalJSON implements json.Marshaler, emitting RFC 3339 or null.
func (f FlexTime) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return gojson.Marshal(f.Time.Format(time.RFC3339Nano))
}

// Ptr returns the instant as a *time.Time, nil when unset.
func (f FlexTime) Ptr() *time.Time {
	if !f.Valid {
		return nil
	}
	t := f.Time
	return &t
}
