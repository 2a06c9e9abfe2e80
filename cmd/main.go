package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rollcall/internal/adapters/events"
	"github.com/okian/rollcall/internal/adapters/http/api"
	"github.com/okian/rollcall/internal/adapters/http/swagger"
	"github.com/okian/rollcall/internal/adapters/lock"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/adapters/sheets"
	app "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/reconcile"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 2 * time.Minute // floor; POST /reconcile waits for a full run
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	once := flag.Bool("once", false, "run one reconciliation and exit")
	flag.Parse()

	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := run(*once); err != nil {
		// Use stderr since the logger may not be available
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(once bool) error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(logOutput(cfg))); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	defer closeStore()

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect lock backend: %w", err)
	}
	defer closeLocker()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn(ctx, "publisher close failed", logger.Error(err))
		}
	}()

	svc := app.New(append(app.ConfigOptions(cfg),
		app.WithLogger(log),
		app.WithStore(store),
		app.WithLocker(locker),
		app.WithPublisher(publisher),
	)...)

	if once {
		t := model.Trigger{ID: uuid.NewString(), Source: model.SourceCLI, At: time.Now()}
		report, err := svc.Reconcile(ctx, t)
		if err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}
		log.Info(ctx, "reconciliation complete",
			logger.String("run_id", report.RunID),
			logger.Int("members", report.Members),
			logger.Float64("points", report.TotalPoints),
		)
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      serverWriteTimeout(cfg),
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// logOutput maps log_output onto a stream.
func logOutput(cfg *config.Config) io.Writer {
	if cfg.LogOutput == config.LogStderr {
		return os.Stderr
	}
	return os.Stdout
}

// serverWriteTimeout leaves POST /reconcile room to answer after a run that
// uses its whole timeout.
func serverWriteTimeout(cfg *config.Config) time.Duration {
	return max(writeTimeout, cfg.RunTimeout()+readTimeout)
}

// newRouter registers the business API and the docs routes.
func newRouter(svc *app.Service, cfg *config.Config) http.Handler {
	r := api.NewServer(svc, cfg.MaxLeaderboardLimit).Router()
	swagger.Register(r)
	return r
}

// openStore opens the configured table backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendSheets:
		st, err := sheets.New(ctx, cfg.SpreadsheetID, sheets.WithCredentialsFile(cfg.CredentialsFile))
		if err != nil {
			return nil, noop, err
		}
		checkTabs(ctx, st, cfg)
		return st, noop, nil

	case config.BackendSQLite:
		st, err := repository.OpenSQLite(ctx, cfg.SQLitePath,
			repository.WithSQLSheet(cfg.Sheets.Events, reconcile.EventHeader),
			repository.WithSQLSheet(cfg.Sheets.Points, reconcile.PointHeader),
			repository.WithSQLSheet(cfg.Sheets.Submissions, reconcile.SubmissionHeader(reconcile.Columns(cfg.Columns))),
			repository.WithSQLSheet(cfg.Sheets.Records, reconcile.RecordHeader),
		)
		if err != nil {
			return nil, noop, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Get().Warn(ctx, "sqlite close failed", logger.Error(err))
			}
		}, nil

	default:
		return repository.NewMemoryStore(
			repository.WithSheet(cfg.Sheets.Events, reconcile.EventHeader),
			repository.WithSheet(cfg.Sheets.Points, reconcile.PointHeader),
			repository.WithSheet(cfg.Sheets.Submissions, reconcile.SubmissionHeader(reconcile.Columns(cfg.Columns))),
			repository.WithSheet(cfg.Sheets.Records, reconcile.RecordHeader),
		), noop, nil
	}
}

// checkTabs warns about configured sheets the spreadsheet lacks. Runs fail
// on them later; the warning names them at startup.
func checkTabs(ctx context.Context, st *sheets.Store, cfg *config.Config) {
	tabs, err := st.Tabs(ctx)
	if err != nil {
		logger.Get().Warn(ctx, "could not list spreadsheet tabs", logger.Error(err))
		return
	}
	have := make(map[string]bool, len(tabs))
	for _, t := range tabs {
		have[t] = true
	}
	for _, name := range []string{cfg.Sheets.Events, cfg.Sheets.Points, cfg.Sheets.Submissions, cfg.Sheets.Records} {
		if !have[name] {
			logger.Get().Warn(ctx, "configured sheet not found", logger.String("sheet", name))
		}
	}
}

// newLocker returns a Redis lock when redis_url is set, a process-local one
// otherwise.
func newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return lock.NewLocalLocker(), func() {}, nil
	}
	client, err := lock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, func() {}, err
	}
	return lock.NewRedisLocker(client, lock.WithTTL(cfg.LockTTL())), func() { _ = client.Close() }, nil
}

// newPublisher returns a Kafka publisher when brokers are configured.
func newPublisher(cfg *config.Config) (events.Publisher, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return events.NopPublisher{}, nil
	}
	return events.NewKafkaPublisher(brokers, events.WithTopic(cfg.KafkaTopic))
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
