package repository

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithSheet creates sheet with the given header and data rows.
func WithSheet(name string, header []string, rows ...[]string) MemoryOption {
	return func(s *MemoryStore) {
		s.sheets[name] = &memorySheet{header: cloneRow(header), rows: cloneRows(rows)}
	}
}

// SQLOption applies a configuration option to the SQLStore.
type SQLOption func(*SQLStore)

// WithSQLSheet registers sheet with the given header when it does not exist
// yet. Existing sheets keep their header and rows.
func WithSQLSheet(name string, header []string) SQLOption {
	return func(s *SQLStore) {
		s.seed = append(s.seed, sheetSeed{name: name, header: cloneRow(header)})
	}
}
