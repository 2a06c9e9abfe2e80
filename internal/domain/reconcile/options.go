package reconcile

import (
	"time"

	"github.com/okian/rollcall/internal/domain/scoring"
)

// DefaultTolerance is the grace period around an event's start and end.
const DefaultTolerance = 30 * time.Minute

// DefaultTimestampLayout formats LastUpdate in record rows.
const DefaultTimestampLayout = "1/2/2006 15:04:05"

// SubmissionLayout formats timestamps of rows appended to the submission
// table. It matches what the form writes and is independent of the record
// layout.
const SubmissionLayout = "1/2/2006 15:04:05"

// Columns are zero-based positions of submission fields in a form row.
type Columns struct {
	Timestamp int
	Email     int
	EventCode int
	FirstName int
	LastName  int
	Anonymous int
}

// DefaultColumns follows the form's field order.
var DefaultColumns = Columns{
	Timestamp: 0,
	Email:     1,
	EventCode: 2,
	FirstName: 3,
	LastName:  4,
	Anonymous: 5,
}

// Options carries everything a run needs besides its input rows.
type Options struct {
	Location        *time.Location
	Tolerance       time.Duration
	DefaultPoints   float64
	Columns         Columns
	TimestampLayout string
}

// Option mutates Options.
type Option func(*Options)

func newOptions(opts []Option) Options {
	o := Options{
		Location:        time.UTC,
		Tolerance:       DefaultTolerance,
		DefaultPoints:   scoring.DefaultPoints,
		Columns:         DefaultColumns,
		TimestampLayout: DefaultTimestampLayout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLocation sets the zone sheet values are read and written in.
func WithLocation(loc *time.Location) Option {
	return func(o *Options) {
		if loc != nil {
			o.Location = loc
		}
	}
}

// WithTolerance sets the window slack. Negative values are ignored.
func WithTolerance(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.Tolerance = d
		}
	}
}

// WithDefaultPoints sets the value for event types missing from the schedule.
func WithDefaultPoints(p float64) Option {
	return func(o *Options) {
		if p >= 0 {
			o.DefaultPoints = p
		}
	}
}

// WithColumns sets the submission column layout.
func WithColumns(c Columns) Option {
	return func(o *Options) { o.Columns = c }
}

// WithTimestampLayout sets the LastUpdate layout of record rows.
func WithTimestampLayout(layout string) Option {
	return func(o *Options) {
		if layout != "" {
			o.TimestampLayout = layout
		}
	}
}

// Resolve applies opts over the defaults.
func Resolve(opts ...Option) Options {
	return newOptions(opts)
}
