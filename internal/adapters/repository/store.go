// Package repository holds the table stores reconciliation reads from and
// writes to, and the in-memory standings read model.
package repository

import (
	"context"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// Store is a collection of named tables. Every table has one header row that
// is never returned or touched; rows are data rows in storage order.
type Store interface {
	// ReadRows returns the data rows of sheet. A missing sheet yields a
	// *MissingSheetError.
	ReadRows(ctx context.Context, sheet string) ([][]string, error)

	// ReplaceRows clears every data row of sheet and writes rows in their
	// place. An empty rows still clears.
	ReplaceRows(ctx context.Context, sheet string, rows [][]string) error

	// AppendRows adds rows after the last data row of sheet.
	AppendRows(ctx context.Context, sheet string, rows [][]string) error
}

// Entry is one ranked member as exposed to readers.
type Entry struct {
	Rank       int
	NetID      string
	Name       string // "Anonymous" for anonymous members
	Anonymous  bool
	Points     float64
	LastUpdate time.Time
}

// Standings is the read model refreshed after every successful run.
type Standings interface {
	// Replace swaps the whole ranking for one built from members.
	Replace(ctx context.Context, members []model.Member) error

	// Rank returns the entry for netID, or ErrNotFound.
	Rank(ctx context.Context, netID string) (Entry, error)

	// TopN returns the first n entries ordered by points desc, netID asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of ranked members.
	Count(ctx context.Context) int
}
