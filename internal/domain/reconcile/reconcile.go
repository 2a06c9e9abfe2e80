// Package reconcile turns attendance form submissions into per-member point
// totals.
//
// A run walks submissions newest-stored first. The first submission seen for
// a member fixes that member's name, anonymity and last update; later-visited
// (older) submissions only add points. Each (member, occurrence) pair is
// credited once.
package reconcile

import (
	"github.com/okian/rollcall/internal/domain/catalog"
	"github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/scoring"
)

// Match binds a submission (by storage position) to an occurrence.
type Match struct {
	Submission int
	Occurrence int
	Points     float64
}

// Result is the outcome of one run. Members are in first-seen order.
type Result struct {
	Members  []model.Member
	Outcomes []Outcome // aligned with the input submissions
	Matches  []Match   // in processing order
	Counts   map[Outcome]int

	// InvalidEvents and SkippedPoints surface rows the loaders ignored.
	InvalidEvents []int
	SkippedPoints []scoring.RowError

	index map[string]int
}

// Member looks up an aggregate by netID.
func (r *Result) Member(netID string) (model.Member, bool) {
	i, ok := r.index[netID]
	if !ok {
		return model.Member{}, false
	}
	return r.Members[i], true
}

// TotalPoints sums points across members.
func (r *Result) TotalPoints() float64 {
	var sum float64
	for _, m := range r.Members {
		sum += m.Points
	}
	return sum
}

// Reconcile folds subs (in storage order) into member aggregates. It has no
// side effects: identical inputs always produce identical results.
func Reconcile(subs []model.Submission, cat *catalog.Catalog, sched *scoring.Schedule, opts ...Option) *Result {
	o := newOptions(opts)

	res := &Result{
		Outcomes:      make([]Outcome, len(subs)),
		Counts:        make(map[Outcome]int, len(Outcomes)),
		InvalidEvents: cat.Invalid,
		SkippedPoints: sched.Skipped,
		index:         make(map[string]int),
	}
	matcher := NewMatcher(cat, dedupe.NewTracker(dedupe.WithSizeHint(len(subs))), o.Tolerance, o.Location)

	for i := len(subs) - 1; i >= 0; i-- {
		sub := subs[i]
		occ, outcome := matcher.Match(sub)
		res.Outcomes[i] = outcome
		res.Counts[outcome]++
		if outcome != OutcomeMatched {
			continue
		}

		points := sched.Points(cat.Event(occ).Type)
		res.Matches = append(res.Matches, Match{Submission: i, Occurrence: occ, Points: points})

		netID := sub.NetID()
		if at, ok := res.index[netID]; ok {
			res.Members[at].Points += points
			continue
		}
		res.index[netID] = len(res.Members)
		res.Members = append(res.Members, model.Member{
			NetID:      netID,
			FirstName:  sub.FirstName,
			LastName:   sub.LastName,
			Anonymous:  IsAnonymous(sub.Anonymous),
			Points:     points,
			LastUpdate: sub.Timestamp,
		})
	}
	return res
}

// Rows is the raw-row entry point: it parses the three input tables (data
// rows only, header excluded) and returns the record rows to persist.
func Rows(submissionRows, eventRows, pointRows [][]string, opts ...Option) ([][]string, *Result) {
	o := newOptions(opts)

	cat := catalog.Load(eventRows, catalog.WithLocation(o.Location))
	sched := scoring.LoadSchedule(pointRows, scoring.WithDefaultPoints(o.DefaultPoints))
	subs := ParseSubmissions(submissionRows, o.Columns, o.Location)

	res := Reconcile(subs, cat, sched, opts...)
	return RecordRows(res.Members, o.TimestampLayout, o.Location), res
}
