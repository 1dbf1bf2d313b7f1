package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ZonelessLayout is the ISO 8601 form without a UTC offset, as written by
// services that format naive local datetimes.
const ZonelessLayout = "2006-01-02T15:04:05.999999999"

// timestampLayouts are tried in order. Zoneless values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	ZonelessLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is a time reported by the service. Values in an unknown
// format decode as the zero time instead of failing the whole response.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses s in any of the accepted layouts.
func ParseTimestamp(s string) (Timestamp, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, true
		}
	}
	return Timestamp{}, false
}

// UnmarshalJSON accepts RFC 3339 and zoneless ISO 8601 strings. null,
// non-strings and unparseable strings leave the timestamp unset.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = Timestamp{}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	if ts, ok := ParseTimestamp(s); ok {
		*t = ts
	}
	return nil
}

// MarshalJSON writes RFC 3339, or null when unset.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
