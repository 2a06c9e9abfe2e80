package reconcile

import (
	"time"

	"github.com/okian/rollcall/internal/domain/catalog"
	"github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/timeparse"
)

// Outcome classifies what happened to one submission.
type Outcome string

// Submission outcomes.
const (
	OutcomeMatched     Outcome = "matched"
	OutcomeUnknownCode Outcome = "unknown_code"
	OutcomeNoWindow    Outcome = "no_window"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeMalformed   Outcome = "malformed"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{OutcomeMatched, OutcomeUnknownCode, OutcomeNoWindow, OutcomeDuplicate, OutcomeMalformed}

// Matcher binds submissions to event occurrences, recording each claim so a
// member cannot claim the same occurrence twice.
type Matcher struct {
	catalog   *catalog.Catalog
	claims    dedupe.Deduper
	tolerance time.Duration
	loc       *time.Location
}

// NewMatcher creates a matcher over cat that records claims in claims.
func NewMatcher(cat *catalog.Catalog, claims dedupe.Deduper, tolerance time.Duration, loc *time.Location) *Matcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Matcher{catalog: cat, claims: claims, tolerance: tolerance, loc: loc}
}

// Match returns the first occurrence, in catalog order, that shares the
// submission's code, is not yet claimed by its netID and whose window holds
// the timestamp. The claim is recorded on success; -1 is returned otherwise.
func (m *Matcher) Match(sub model.Submission) (int, Outcome) {
	occurrences := m.catalog.Occurrences(sub.EventCode)
	if len(occurrences) == 0 {
		return -1, OutcomeUnknownCode
	}
	if sub.Malformed {
		return -1, OutcomeMalformed
	}

	netID := sub.NetID()
	claimed := false
	for _, i := range occurrences {
		if !m.InWindow(m.catalog.Event(i), sub.Timestamp) {
			continue
		}
		if m.claims.SeenAndRecord(netID, i) {
			claimed = true
			continue
		}
		return i, OutcomeMatched
	}
	if claimed {
		return -1, OutcomeDuplicate
	}
	return -1, OutcomeNoWindow
}

// InWindow reports whether ts falls on the event's date and within
// [start - tolerance, end + tolerance], both bounds inclusive.
func (m *Matcher) InWindow(ev model.Event, ts time.Time) bool {
	if !ev.Valid {
		return false
	}
	if !timeparse.SameDay(ts, ev.Date, m.loc) {
		return false
	}
	from := ev.Start.Add(-m.tolerance)
	to := ev.End.Add(m.tolerance)
	return !ts.Before(from) && !ts.After(to)
}
