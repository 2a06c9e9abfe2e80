package repository

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/okian/rollcall/internal/domain/model"
)

// snapshot is an immutable ranking; readers never see a partial Replace.
type snapshot struct {
	entries []Entry        // sorted, Rank = position + 1
	byNetID map[string]int // netID -> position
}

// MemoryStandings ranks members by points desc, then netID asc.
type MemoryStandings struct {
	current atomic.Pointer[snapshot]
}

var _ Standings = (*MemoryStandings)(nil)

// NewMemoryStandings creates an empty ranking.
func NewMemoryStandings() *MemoryStandings {
	s := &MemoryStandings{}
	s.current.Store(&snapshot{byNetID: map[string]int{}})
	return s
}

// less returns true if a should appear before b (higher points first).
func less(a, b Entry) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	return a.NetID < b.NetID
}

// Replace builds a new snapshot from members and publishes it.
func (s *MemoryStandings) Replace(ctx context.Context, members []model.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries := make([]Entry, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.NetID]; dup {
			continue
		}
		seen[m.NetID] = struct{}{}
		entries = append(entries, Entry{
			NetID:      m.NetID,
			Name:       m.DisplayName(),
			Anonymous:  m.Anonymous,
			Points:     m.Points,
			LastUpdate: m.LastUpdate,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })

	byNetID := make(map[string]int, len(entries))
	for i := range entries {
		entries[i].Rank = i + 1
		byNetID[entries[i].NetID] = i
	}
	s.current.Store(&snapshot{entries: entries, byNetID: byNetID})
	return nil
}

// Rank returns the entry for netID.
func (s *MemoryStandings) Rank(_ context.Context, netID string) (Entry, error) {
	snap := s.current.Load()
	i, ok := snap.byNetID[netID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return snap.entries[i], nil
}

// TopN returns up to n leading entries.
func (s *MemoryStandings) TopN(_ context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	snap := s.current.Load()
	if n > len(snap.entries) {
		n = len(snap.entries)
	}
	out := make([]Entry, n)
	copy(out, snap.entries[:n])
	return out, nil
}

// Count returns the number of ranked members.
func (s *MemoryStandings) Count(_ context.Context) int {
	return len(s.current.Load().entries)
}
