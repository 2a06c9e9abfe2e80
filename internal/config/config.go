// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New builds a Config with defaults; Load layers file and env on top.
// - Validation failures wrap ErrInvalidConfig, source failures ErrLoadConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported backends.
const (
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Log destinations.
const (
	LogStdout = "stdout"
	LogStderr = "stderr"
)

// Sheets names the four backing tables.
type Sheets struct {
	Events      string `koanf:"events"`
	Points      string `koanf:"points"`
	Submissions string `koanf:"submissions"`
	Records     string `koanf:"records"`
}

// Columns are zero-based positions of the submission fields in a form row.
type Columns struct {
	Timestamp int `koanf:"timestamp"`
	Email     int `koanf:"email"`
	EventCode int `koanf:"event_code"`
	FirstName int `koanf:"first_name"`
	LastName  int `koanf:"last_name"`
	Anonymous int `koanf:"anonymous"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// LogOutput is "stdout" or "stderr".
	LogOutput string `koanf:"log_output"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Backend selects where sheets live: sheets, sqlite or memory.
	Backend string `koanf:"backend"`

	// SpreadsheetID and CredentialsFile configure the Google Sheets backend.
	SpreadsheetID   string `koanf:"spreadsheet_id"`
	CredentialsFile string `koanf:"credentials_file"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// RedisURL enables the distributed run lock when set. Running holders
	// extend the lock every third of LockTTLMS.
	RedisURL  string `koanf:"redis_url"`
	LockTTLMS int    `koanf:"lock_ttl_ms"`

	// RunTimeoutS bounds one reconciliation run; 0 leaves runs unbounded.
	RunTimeoutS int `koanf:"run_timeout_s"`

	// KafkaBrokers is a comma separated broker list; empty disables publishing.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`

	// SyncIntervalS schedules a reconciliation every N seconds; 0 disables.
	SyncIntervalS int `koanf:"sync_interval_s"`

	// QueueSize bounds pending reconciliation triggers.
	QueueSize int `koanf:"queue_size"`

	// Timezone is the IANA zone sheet dates and times are written in.
	Timezone string `koanf:"timezone"`

	// ToleranceMinutes widens each event window on both ends.
	ToleranceMinutes int `koanf:"tolerance_minutes"`

	// DefaultPoints applies to event types missing from the point schedule.
	DefaultPoints float64 `koanf:"default_points"`

	// TimestampLayout formats LastUpdate in the record table. It must read
	// back to the same minute so restarts can warm standings.
	TimestampLayout string `koanf:"timestamp_layout"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	Sheets  Sheets  `koanf:"sheets"`
	Columns Columns `koanf:"columns"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		LogOutput:           LogStdout,
		Addr:                ":9080",
		Backend:             BackendSQLite,
		CredentialsFile:     "credentials.json",
		SQLitePath:          "rollcall.db",
		LockTTLMS:           120_000,
		RunTimeoutS:         90,
		KafkaTopic:          "points.reconciled",
		SyncIntervalS:       300,
		QueueSize:           64,
		Timezone:            "America/New_York",
		ToleranceMinutes:    30,
		DefaultPoints:       1,
		TimestampLayout:     "1/2/2006 15:04:05",
		MaxLeaderboardLimit: 100,
		Sheets: Sheets{
			Events:      "Events",
			Points:      "Point Values",
			Submissions: "Form Responses 1",
			Records:     "Points",
		},
		Columns: Columns{
			Timestamp: 0,
			Email:     1,
			EventCode: 2,
			FirstName: 3,
			LastName:  4,
			Anonymous: 5,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.LogOutput {
	case LogStdout, LogStderr:
	default:
		return fmt.Errorf("%w: log_output must be %s or %s", ErrInvalidConfig, LogStdout, LogStderr)
	}
	switch c.Backend {
	case BackendSheets:
		if c.SpreadsheetID == "" {
			return fmt.Errorf("%w: spreadsheet_id is required for the sheets backend", ErrInvalidConfig)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite backend", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.ToleranceMinutes < 0 {
		return fmt.Errorf("%w: tolerance_minutes must not be negative", ErrInvalidConfig)
	}
	if c.DefaultPoints < 0 {
		return fmt.Errorf("%w: default_points must not be negative", ErrInvalidConfig)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.SyncIntervalS < 0 {
		return fmt.Errorf("%w: sync_interval_s must not be negative", ErrInvalidConfig)
	}
	if c.RunTimeoutS < 0 {
		return fmt.Errorf("%w: run_timeout_s must not be negative", ErrInvalidConfig)
	}
	if c.LockTTLMS < minLockTTLMS {
		return fmt.Errorf("%w: lock_ttl_ms must be at least %d", ErrInvalidConfig, minLockTTLMS)
	}
	if err := checkLayout(c.TimestampLayout); err != nil {
		return err
	}
	if c.MaxLeaderboardLimit < 1 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	for _, s := range []string{c.Sheets.Events, c.Sheets.Points, c.Sheets.Submissions, c.Sheets.Records} {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: sheet names must not be empty", ErrInvalidConfig)
		}
	}
	return c.Columns.validate()
}

// minLockTTLMS keeps the lease refresh period, a third of the TTL, sane.
const minLockTTLMS = 300

// layoutProbeTime is formatted and parsed back to check a record layout.
var layoutProbeTime = time.Date(2024, time.November, 28, 18, 47, 0, 0, time.UTC)

func checkLayout(layout string) error {
	if strings.TrimSpace(layout) == "" {
		return fmt.Errorf("%w: timestamp_layout must not be empty", ErrInvalidConfig)
	}
	back, err := time.Parse(layout, layoutProbeTime.Format(layout))
	if err != nil || !back.Equal(layoutProbeTime) {
		return fmt.Errorf("%w: timestamp_layout %q does not read back to the minute", ErrInvalidConfig, layout)
	}
	return nil
}

func (c Columns) validate() error {
	seen := make(map[int]bool, 6)
	for _, col := range []int{c.Timestamp, c.Email, c.EventCode, c.FirstName, c.LastName, c.Anonymous} {
		if col < 0 {
			return fmt.Errorf("%w: column positions must not be negative", ErrInvalidConfig)
		}
		if seen[col] {
			return fmt.Errorf("%w: column %d is mapped twice", ErrInvalidConfig, col)
		}
		seen[col] = true
	}
	return nil
}

// Location returns the configured zone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Tolerance returns the event window slack as a duration.
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceMinutes) * time.Minute
}

// LockTTL returns the run lock expiry.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMS) * time.Millisecond
}

// RunTimeout returns the per-run bound; zero leaves runs unbounded.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutS) * time.Second
}

// SyncInterval returns the scheduler period; zero disables the scheduler.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalS) * time.Second
}

// Brokers splits KafkaBrokers into a list, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
