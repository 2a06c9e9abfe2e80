package service

import (
	"time"

	"github.com/okian/rollcall/internal/adapters/events"
	"github.com/okian/rollcall/internal/adapters/lock"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/internal/domain/reconcile"
	"github.com/okian/rollcall/pkg/logger"
)

// Sheets names the four tables a run touches.
type Sheets struct {
	Events      string
	Points      string
	Submissions string
	Records     string
}

// DefaultSheets matches the spreadsheet the form writes to.
var DefaultSheets = Sheets{
	Events:      "Events",
	Points:      "Point Values",
	Submissions: "Form Responses 1",
	Records:     "Points",
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the table store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStandings sets the read model refreshed after every run.
func WithStandings(standings repository.Standings) Option {
	return func(s *Service) {
		if standings != nil {
			s.standings = standings
		}
	}
}

// WithLocker sets the run lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithPublisher sets where run notifications go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithSheets sets the table names.
func WithSheets(sheets Sheets) Option {
	return func(s *Service) {
		s.sheets = sheets
	}
}

// WithReconcileOptions sets the options every run is made with.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(s *Service) {
		s.reconcileOpts = append(s.reconcileOpts, opts...)
	}
}

// WithSyncInterval schedules a run every d; zero disables the scheduler.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.syncInterval = d
		}
	}
}

// WithQueueSize sets the maximum number of pending triggers.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCoalescing folds triggers into one that is already pending.
func WithCoalescing(on bool) Option {
	return func(s *Service) {
		s.coalesce = on
	}
}

// WithRunTimeout bounds each run, queued or direct. Zero leaves runs
// unbounded.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.runTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// ConfigOptions maps cfg onto service options. Backends, lock and publisher
// are wired by the caller.
func ConfigOptions(cfg *config.Config) []Option {
	loc := cfg.Location()
	cols := reconcile.Columns{
		Timestamp: cfg.Columns.Timestamp,
		Email:     cfg.Columns.Email,
		EventCode: cfg.Columns.EventCode,
		FirstName: cfg.Columns.FirstName,
		LastName:  cfg.Columns.LastName,
		Anonymous: cfg.Columns.Anonymous,
	}
	return []Option{
		WithSheets(Sheets{
			Events:      cfg.Sheets.Events,
			Points:      cfg.Sheets.Points,
			Submissions: cfg.Sheets.Submissions,
			Records:     cfg.Sheets.Records,
		}),
		WithReconcileOptions(
			reconcile.WithLocation(loc),
			reconcile.WithTolerance(cfg.Tolerance()),
			reconcile.WithDefaultPoints(cfg.DefaultPoints),
			reconcile.WithColumns(cols),
			reconcile.WithTimestampLayout(cfg.TimestampLayout),
		),
		WithSyncInterval(cfg.SyncInterval()),
		WithQueueSize(cfg.QueueSize),
		WithRunTimeout(cfg.RunTimeout()),
		WithCoalescing(true),
	}
}
