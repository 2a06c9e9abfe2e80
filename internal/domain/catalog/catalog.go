// Package catalog loads the event schedule and indexes occurrences by code.
package catalog

import (
	"strings"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/timeparse"
)

// Column positions of an event row.
const (
	colDate = iota
	colStart
	colEnd
	colName
	colType
	colCode
)

// Catalog holds event occurrences in sheet order plus a code index.
type Catalog struct {
	events []model.Event
	byCode map[string][]int

	// Invalid lists positions of rows that could not be parsed.
	Invalid []int
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	loc *time.Location
}

// WithLocation sets the zone dates and times are read in (UTC by default).
func WithLocation(loc *time.Location) Option {
	return func(l *loader) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// Load parses data rows (header excluded) into a Catalog. Every row keeps its
// position so occurrence indices stay stable; unparseable rows are marked
// invalid and rows without a code are not indexed.
func Load(rows [][]string, opts ...Option) *Catalog {
	l := loader{loc: time.UTC}
	for _, opt := range opts {
		opt(&l)
	}

	c := &Catalog{
		events: make([]model.Event, len(rows)),
		byCode: make(map[string][]int),
	}
	for i, row := range rows {
		ev := l.parse(row)
		c.events[i] = ev
		if !ev.Valid {
			c.Invalid = append(c.Invalid, i)
		}
		if ev.Code != "" {
			c.byCode[ev.Code] = append(c.byCode[ev.Code], i)
		}
	}
	return c
}

func (l loader) parse(row []string) model.Event {
	ev := model.Event{
		Name: cell(row, colName),
		Type: cell(row, colType),
		Code: cell(row, colCode),
	}
	date, err := timeparse.Date(cell(row, colDate), l.loc)
	if err != nil {
		return ev
	}
	start, err := timeparse.Clock(cell(row, colStart))
	if err != nil {
		return ev
	}
	end, err := timeparse.Clock(cell(row, colEnd))
	if err != nil {
		return ev
	}
	ev.Date = date
	ev.Start = timeparse.Anchor(date, start)
	ev.End = timeparse.Anchor(date, end)
	ev.Valid = true
	return ev
}

// Len returns the number of occurrences, valid or not.
func (c *Catalog) Len() int { return len(c.events) }

// Event returns the occurrence at position i.
func (c *Catalog) Event(i int) model.Event { return c.events[i] }

// Occurrences returns the positions sharing code, in catalog order.
func (c *Catalog) Occurrences(code string) []int {
	return c.byCode[strings.TrimSpace(code)]
}

// Codes returns the number of distinct event codes.
func (c *Catalog) Codes() int { return len(c.byCode) }

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}
