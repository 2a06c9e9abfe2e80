package sheets

import "google.golang.org/api/option"

// DefaultLastColumn bounds read and clear ranges.
const DefaultLastColumn = "ZZ"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithCredentialsFile authenticates with a service-account JSON file.
func WithCredentialsFile(path string) Option {
	return func(s *Store) {
		if path != "" {
			s.clientOpts = append(s.clientOpts, option.WithCredentialsFile(path))
		}
	}
}

// WithClientOptions passes raw client options to the Sheets service.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *Store) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// WithLastColumn sets the right edge of read and clear ranges.
func WithLastColumn(col string) Option {
	return func(s *Store) {
		if col != "" {
			s.lastColumn = col
		}
	}
}
