package repository

import (
	"context"
	"sync"
)

type memorySheet struct {
	header []string
	rows   [][]string
}

// MemoryStore is a Store kept in process memory. It backs tests and the
// "memory" backend.
type MemoryStore struct {
	mu     sync.RWMutex
	sheets map[string]*memorySheet
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding the sheets given by opts.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{sheets: make(map[string]*memorySheet)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadRows returns a copy of the sheet's data rows.
func (s *MemoryStore) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.sheets[sheet]
	if !ok {
		return nil, &MissingSheetError{Sheet: sheet}
	}
	return cloneRows(sh.rows), nil
}

// ReplaceRows swaps the sheet's data rows, creating the sheet if needed.
func (s *MemoryStore) ReplaceRows(ctx context.Context, sheet string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.sheets[sheet]
	if !ok {
		sh = &memorySheet{}
		s.sheets[sheet] = sh
	}
	sh.rows = cloneRows(rows)
	return nil
}

// AppendRows adds rows to an existing sheet.
func (s *MemoryStore) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.sheets[sheet]
	if !ok {
		return &MissingSheetError{Sheet: sheet}
	}
	sh.rows = append(sh.rows, cloneRows(rows)...)
	return nil
}

// Header returns the sheet's header row.
func (s *MemoryStore) Header(sheet string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.sheets[sheet]
	if !ok {
		return nil, false
	}
	return cloneRow(sh.header), true
}

func cloneRow(row []string) []string {
	if row == nil {
		return nil
	}
	out := make([]string, len(row))
	copy(out, row)
	return out
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out
}
