// Package scoring maps event types to the points an attendance is worth.
package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultPoints applies to event types missing from the schedule.
const DefaultPoints = 1

// Option applies a configuration option to the Schedule.
type Option func(*Schedule)

// WithDefaultPoints sets the fallback for unknown event types. Negative or
// non-finite values are ignored.
func WithDefaultPoints(points float64) Option {
	return func(s *Schedule) {
		if points >= 0 && !math.IsInf(points, 0) {
			s.defaultPoints = points
		}
	}
}

// RowError describes a schedule row that was skipped.
type RowError struct {
	Row   int // zero-based data row
	Value string
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("point schedule row %d: %q: %v", e.Row, e.Value, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Schedule holds per-event-type point values.
type Schedule struct {
	points        map[string]float64
	defaultPoints float64

	// Skipped lists rows that were ignored while loading.
	Skipped []RowError
}

// NewSchedule creates an empty schedule.
func NewSchedule(opts ...Option) *Schedule {
	s := &Schedule{
		points:        make(map[string]float64),
		defaultPoints: DefaultPoints,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadSchedule parses (eventType, points) data rows. Later duplicates
// overwrite earlier ones; rows with a blank type or a non-numeric or negative
// value are skipped and reported in Skipped.
func LoadSchedule(rows [][]string, opts ...Option) *Schedule {
	s := NewSchedule(opts...)
	for i, row := range rows {
		var eventType, raw string
		if len(row) > 0 {
			eventType = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			raw = strings.TrimSpace(row[1])
		}
		if eventType == "" {
			continue
		}
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.Skipped = append(s.Skipped, RowError{Row: i, Value: raw, Err: ErrInvalidPoints})
			continue
		}
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			s.Skipped = append(s.Skipped, RowError{Row: i, Value: raw, Err: ErrNegativePoints})
			continue
		}
		s.points[eventType] = p
	}
	return s
}

// Set assigns points to an event type.
func (s *Schedule) Set(eventType string, points float64) {
	s.points[strings.TrimSpace(eventType)] = points
}

// Points returns the value for eventType, or the default when unknown.
func (s *Schedule) Points(eventType string) float64 {
	if p, ok := s.points[strings.TrimSpace(eventType)]; ok {
		return p
	}
	return s.defaultPoints
}

// Default returns the fallback value.
func (s *Schedule) Default() float64 { return s.defaultPoints }

// Len returns the number of configured event types.
func (s *Schedule) Len() int { return len(s.points) }
