// Package timeparse reads the date, clock and timestamp formats that show up
// in spreadsheet cells.
package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparseable is returned when no known layout matches.
var ErrUnparseable = errors.New("unparseable time value")

var dateLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"2006-01-02",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04:05 PM",
	"3:04PM",
	"3PM",
	"3 PM",
}

var timestampLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// Date parses a calendar date and returns midnight of that day in loc.
func Date(value string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrUnparseable, value)
}

// Clock parses a time of day and returns it as an offset from midnight.
func Clock(value string) (time.Duration, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("%w: clock %q", ErrUnparseable, value)
}

// Timestamp parses a date-time. Values carrying their own offset (RFC 3339)
// keep it; everything else is read in loc.
func Timestamp(value string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	upper := strings.ToUpper(v)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, upper, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrUnparseable, value)
}

// TimestampIn tries layout first and falls back to Timestamp.
func TimestampIn(value, layout string, loc *time.Location) (time.Time, error) {
	if layout != "" {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(value), loc); err == nil {
			return t, nil
		}
	}
	return Timestamp(value, loc)
}

// Anchor places a clock offset on the calendar day of date. It uses the
// wall clock so DST transitions do not shift the result.
func Anchor(date time.Time, clock time.Duration) time.Time {
	y, m, d := date.Date()
	h := int(clock / time.Hour)
	mi := int(clock % time.Hour / time.Minute)
	s := int(clock % time.Minute / time.Second)
	return time.Date(y, m, d, h, mi, s, 0, date.Location())
}

// SameDay reports whether a and b fall on the same calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
