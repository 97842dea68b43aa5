// Package dbtime holds column types that scan identically from Postgres (pgx) and SQLite (modernc).
package dbtime

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

var textLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	dayLayout,
}

// Time is a timestamp column stored in UTC.
type Time struct{ time.Time }

// Now wraps t for storage.
func Now(t time.Time) Time { return Time{Time: t.UTC()} }

// Scan accepts time.Time or the textual forms SQLite returns.
func (t *Time) Scan(v any) error {
	parsed, err := scanTime(v)
	if err != nil {
		return fmt.Errorf("dbtime: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}

// Value stores the timestamp in UTC.
func (t Time) Value() (driver.Value, error) {
	if t.Time.IsZero() {
		return nil, nil
	}
	return t.Time.UTC(), nil
}

// Day is a calendar date: midnight of the date, carried in UTC so both drivers store the same key.
type Day struct{ time.Time }

// DayOf truncates t to its calendar date in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Day{Time: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDay accepts "2006-01-02" or an RFC3339 timestamp, which is truncated to its date in loc.
func ParseDay(s string, loc *time.Location) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Day{}, fmt.Errorf("date is required")
	}
	if d, err := time.Parse(dayLayout, s); err == nil {
		return Day{Time: d}, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Day{}, fmt.Errorf("date %q: expected YYYY-MM-DD or RFC3339", s)
	}
	return DayOf(ts, loc), nil
}

func (d Day) String() string { return d.Time.Format(dayLayout) }

// Scan accepts DATE values from pgx or stored text from SQLite.
func (d *Day) Scan(v any) error {
	parsed, err := scanTime(v)
	if err != nil {
		return fmt.Errorf("dbtime: %w", err)
	}
	d.Time = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

// Value stores midnight UTC of the date.
func (d Day) Value() (driver.Value, error) {
	if d.Time.IsZero() {
		return nil, nil
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (d Day) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDay(s, time.UTC)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func scanTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return parseText(x)
	case []byte:
		return parseText(string(x))
	case int64:
		return time.UnixMilli(x).UTC(), nil
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported scan type %T", v)
	}
}

func parseText(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
