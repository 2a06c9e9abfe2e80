// Package dedupe tracks which event occurrences each member already claimed.
package dedupe

// Key identifies one claim: a member and a catalog occurrence position.
type Key struct {
	NetID      string
	Occurrence int
}

// Deduper records claims so that a (member, occurrence) pair is credited at
// most once per run.
type Deduper interface {
	// SeenAndRecord reports whether the pair was already claimed and records
	// it if not.
	SeenAndRecord(netID string, occurrence int) bool

	Size() int
}

// Tracker is a map-backed Deduper. It is not safe for concurrent use; a
// reconciliation run owns one Tracker for its whole pass.
type Tracker struct {
	seen map[Key]struct{}
}

var _ Deduper = (*Tracker)(nil)

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Tracker{seen: make(map[Key]struct{}, o.sizeHint)}
}

// SeenAndRecord reports whether the pair was already claimed and records it
// if not.
func (t *Tracker) SeenAndRecord(netID string, occurrence int) bool {
	k := Key{NetID: netID, Occurrence: occurrence}
	if _, ok := t.seen[k]; ok {
		return true
	}
	t.seen[k] = struct{}{}
	return false
}

// Seen reports whether the pair was claimed without recording it.
func (t *Tracker) Seen(netID string, occurrence int) bool {
	_, ok := t.seen[Key{NetID: netID, Occurrence: occurrence}]
	return ok
}

// Size returns the number of recorded claims.
func (t *Tracker) Size() int { return len(t.seen) }
