package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/adapters/events"
	"github.com/okian/rollcall/internal/adapters/lock"
	"github.com/okian/rollcall/internal/adapters/repository"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/reconcile"
	"github.com/okian/rollcall/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var (
	eventHeader  = []string{"Date", "Start", "End", "Name", "Type", "Code"}
	pointHeader  = []string{"EventType", "Points"}
	formHeader   = []string{"Timestamp", "Email", "Code", "First", "Last", "Anonymous"}
	recordHeader = reconcile.RecordHeader
)

func seededStore(submissions ...[]string) *repository.MemoryStore {
	return repository.NewMemoryStore(
		repository.WithSheet("Events", eventHeader,
			[]string{"1/10/2024", "18:00", "19:00", "Kickoff", "Social", "C1"},
			[]string{"1/17/2024", "18:00", "19:00", "Workshop A", "Workshop", "W1"},
		),
		repository.WithSheet("Point Values", pointHeader, []string{"Social", "2"}),
		repository.WithSheet("Form Responses 1", formHeader, submissions...),
		repository.WithSheet("Points", recordHeader, []string{"stale", "Old", "Row", "No", "9", "1/1/2024 00:00:00"}),
	)
}

type capturePublisher struct {
	mu   sync.Mutex
	evs  []events.Reconciled
	fail error
}

func (p *capturePublisher) Publish(_ context.Context, ev events.Reconciled) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
	return p.fail
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.evs)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should not be started", func() {
			So(svc, ShouldNotBeNil)
			So(svc.Started(), ShouldBeFalse)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("Then triggers are refused until started", func() {
			_, ok := svc.Trigger(context.Background(), model.SourceManual)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given options built from the default config", t, func() {
		svc := service.New(service.ConfigOptions(config.New())...)

		Convey("Then the service can start and stop", func() {
			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["queueSize"], ShouldEqual, 64)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}

func TestService_Reconcile(t *testing.T) {
	Convey("Given a store with events, points and submissions", t, func() {
		ctx := context.Background()
		store := seededStore(
			[]string{"1/10/2024 18:05:00", "ab12@uni.edu", "C1", "Ada", "Byron", "No"},
			[]string{"1/17/2024 18:10:00", "ab12@uni.edu", "W1", "Ada", "Lovelace", "Yes"},
			[]string{"1/10/2024 18:20:00", "cd34@uni.edu", "C1", "Cy", "Dee", ""},
			[]string{"1/10/2024 20:00:00", "ef56@uni.edu", "C1", "Ed", "Eff", ""},
			[]string{"1/10/2024 18:20:00", "gh78@uni.edu", "ZZ", "Gus", "Gee", ""},
		)
		pub := &capturePublisher{}
		svc := service.New(
			service.WithStore(store),
			service.WithPublisher(pub),
		)

		Convey("When a run completes", func() {
			report, err := svc.Reconcile(ctx, model.Trigger{ID: "t-1", Source: model.SourceManual})
			So(err, ShouldBeNil)

			Convey("Then the record table is overwritten", func() {
				rows, err := store.ReadRows(ctx, "Points")
				So(err, ShouldBeNil)
				So(rows, ShouldResemble, [][]string{
					{"cd34", "Cy", "Dee", "No", "2", "1/10/2024 18:20:00"},
					{"ab12", "Ada", "Lovelace", "Yes", "3", "1/17/2024 18:10:00"},
				})
				header, _ := store.Header("Points")
				So(header, ShouldResemble, recordHeader)
			})

			Convey("Then the report counts every outcome", func() {
				So(report.TriggerID, ShouldEqual, "t-1")
				So(report.RunID, ShouldNotBeEmpty)
				So(report.Submissions, ShouldEqual, 5)
				So(report.Members, ShouldEqual, 2)
				So(report.TotalPoints, ShouldEqual, 5.0)
				So(report.Outcomes["matched"], ShouldEqual, 3)
				So(report.Outcomes["no_window"], ShouldEqual, 1)
				So(report.Outcomes["unknown_code"], ShouldEqual, 1)
				last, ok := svc.LastRun()
				So(ok, ShouldBeTrue)
				So(last.RunID, ShouldEqual, report.RunID)
			})

			Convey("Then standings are refreshed", func() {
				top, err := svc.TopN(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 2)
				So(top[0].NetID, ShouldEqual, "ab12")
				So(top[0].Name, ShouldEqual, "Anonymous")
				So(top[1].Name, ShouldEqual, "Cy Dee")

				m, err := svc.Member(ctx, "cd34")
				So(err, ShouldBeNil)
				So(m.Rank, ShouldEqual, 2)

				_, err = svc.Member(ctx, "stale")
				So(err, ShouldEqual, repository.ErrNotFound)
			})

			Convey("Then a notification is published", func() {
				So(pub.count(), ShouldEqual, 1)
				So(pub.evs[0].Sheet, ShouldEqual, "Points")
				So(pub.evs[0].Members, ShouldEqual, 2)
			})

			Convey("Then a second run gives the same table", func() {
				first, _ := store.ReadRows(ctx, "Points")
				_, err := svc.Reconcile(ctx, model.Trigger{ID: "t-2"})
				So(err, ShouldBeNil)
				second, _ := store.ReadRows(ctx, "Points")
				So(second, ShouldResemble, first)
			})
		})

		Convey("When publishing fails", func() {
			pub.fail = errors.New("broker down")
			_, err := svc.Reconcile(ctx, model.Trigger{ID: "t-1"})

			Convey("Then the run still succeeds", func() {
				So(err, ShouldBeNil)
				rows, _ := store.ReadRows(ctx, "Points")
				So(rows, ShouldHaveLength, 2)
			})
		})
	})

	Convey("Given an empty submission table", t, func() {
		ctx := context.Background()
		store := seededStore()
		svc := service.New(service.WithStore(store))

		Convey("When reconciling", func() {
			report, err := svc.Reconcile(ctx, model.Trigger{ID: "t-1"})

			Convey("Then pre-existing record rows are cleared", func() {
				So(err, ShouldBeNil)
				So(report.Members, ShouldEqual, 0)
				rows, _ := store.ReadRows(ctx, "Points")
				So(rows, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a store without the event table", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(
			repository.WithSheet("Point Values", pointHeader),
			repository.WithSheet("Form Responses 1", formHeader),
			repository.WithSheet("Points", recordHeader, []string{"keep", "Me", "Here", "No", "4", "1/1/2024 00:00:00"}),
		)
		svc := service.New(service.WithStore(store))

		Convey("When reconciling", func() {
			report, err := svc.Reconcile(ctx, model.Trigger{ID: "t-1"})

			Convey("Then the run fails and nothing is written", func() {
				So(errors.Is(err, repository.ErrMissingSheet), ShouldBeTrue)
				So(report.Error, ShouldContainSubstring, "Events")
				rows, _ := store.ReadRows(ctx, "Points")
				So(rows, ShouldHaveLength, 1)
				So(rows[0][0], ShouldEqual, "keep")
			})
		})
	})

	Convey("Given the run lock is already held", t, func() {
		ctx := context.Background()
		locker := lock.NewLocalLocker()
		lease, err := locker.Acquire(ctx, "reconcile")
		So(err, ShouldBeNil)
		svc := service.New(service.WithStore(seededStore()), service.WithLocker(locker))

		Convey("When reconciling directly", func() {
			_, err := svc.Reconcile(ctx, model.Trigger{ID: "t-1"})

			Convey("Then the caller learns a run is in progress", func() {
				So(errors.Is(err, service.ErrRunInProgress), ShouldBeTrue)
				So(errors.Is(err, lock.ErrLocked), ShouldBeTrue)
			})
		})

		Convey("When a queued trigger hits the lock", func() {
			err := svc.RunTrigger(ctx, model.Trigger{ID: "t-1"})

			Convey("Then it is skipped without error", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When the lock is released", func() {
			So(lease.Release(ctx), ShouldBeNil)
			_, err := svc.Reconcile(ctx, model.Trigger{ID: "t-1"})
			So(err, ShouldBeNil)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a started service over a seeded store", t, func() {
		ctx := context.Background()
		store := seededStore()
		pub := &capturePublisher{}
		svc := service.New(
			service.WithStore(store),
			service.WithPublisher(pub),
			service.WithCoalescing(true),
			service.WithClock(func() time.Time { return time.Date(2024, 1, 10, 18, 30, 0, 0, time.UTC) }),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("Then standings were warmed from the record table", func() {
			m, err := svc.Member(ctx, "stale")
			So(err, ShouldBeNil)
			So(m.Points, ShouldEqual, 9.0)
		})

		Convey("When a form submission is posted", func() {
			tr, err := svc.Submit(ctx, service.Submission{
				Email:     " ab12@uni.edu ",
				EventCode: "C1",
				FirstName: "Ada",
				LastName:  "Byron",
				Anonymous: "no",
			})
			So(err, ShouldBeNil)
			So(tr.Source, ShouldEqual, model.SourceForm)

			Convey("Then the row is stored in form column order", func() {
				rows, _ := store.ReadRows(ctx, "Form Responses 1")
				So(rows, ShouldResemble, [][]string{
					{"1/10/2024 18:30:00", "ab12@uni.edu", "C1", "Ada", "Byron", "no"},
				})
			})

			Convey("Then the worker reconciles it", func() {
				So(eventually(func() bool {
					_, err := svc.Member(ctx, "ab12")
					return err == nil
				}), ShouldBeTrue)
				So(pub.count(), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When a submission lacks an email", func() {
			_, err := svc.Submit(ctx, service.Submission{EventCode: "C1"})
			So(err, ShouldEqual, service.ErrMissingEmail)
		})

		Convey("When a submission lacks a code", func() {
			_, err := svc.Submit(ctx, service.Submission{Email: "a@x"})
			So(err, ShouldEqual, service.ErrMissingCode)
		})

		Convey("When a manual trigger is enqueued", func() {
			_, ok := svc.Trigger(ctx, model.SourceManual)
			So(ok, ShouldBeTrue)

			Convey("Then a run is recorded", func() {
				So(eventually(func() bool {
					_, ok := svc.LastRun()
					return ok
				}), ShouldBeTrue)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats, ShouldContainKey, "lastRun")
			})
		})
	})

	Convey("Given a service with a short sync interval", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithStore(seededStore()),
			service.WithSyncInterval(10*time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("Then the scheduler triggers runs on its own", func() {
			So(eventually(func() bool {
				last, ok := svc.LastRun()
				return ok && last.Source == model.SourceTimer
			}), ShouldBeTrue)
		})
	})

	Convey("Given a stopped service", t, func() {
		ctx := context.Background()
		store := seededStore()
		svc := service.New(service.WithStore(store))

		Convey("When a submission is posted", func() {
			_, err := svc.Submit(ctx, service.Submission{Email: "a@x", EventCode: "C1"})

			Convey("Then it is refused and nothing is stored", func() {
				So(err, ShouldEqual, service.ErrNotStarted)
				rows, err := store.ReadRows(ctx, "Form Responses 1")
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
			})

			Convey("Then a retry after start stores exactly one row", func() {
				So(svc.Start(ctx), ShouldBeNil)
				Reset(func() { _ = svc.Stop(ctx) })
				_, err := svc.Submit(ctx, service.Submission{Email: "a@x", EventCode: "C1"})
				So(err, ShouldBeNil)
				rows, _ := store.ReadRows(ctx, "Form Responses 1")
				So(rows, ShouldHaveLength, 1)
			})
		})
	})
}

func TestService_CustomRecordLayout(t *testing.T) {
	Convey("Given a service whose record layout differs from the form's", t, func() {
		ctx := context.Background()
		layout := "2006-01-02 3:04 PM"
		store := seededStore()
		clock := func() time.Time { return time.Date(2024, 1, 10, 18, 30, 0, 0, time.UTC) }
		svc := service.New(
			service.WithStore(store),
			service.WithReconcileOptions(reconcile.WithTimestampLayout(layout)),
			service.WithClock(clock),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When a webhook submission is reconciled", func() {
			_, err := svc.Submit(ctx, service.Submission{Email: "ab12@uni.edu", EventCode: "C1", FirstName: "Ada", LastName: "Byron"})
			So(err, ShouldBeNil)
			So(eventually(func() bool {
				last, ok := svc.LastRun()
				return ok && last.Submissions == 1
			}), ShouldBeTrue)
			last, _ := svc.LastRun()

			Convey("Then the submission matches its event", func() {
				So(last.Outcomes["matched"], ShouldEqual, 1)
				So(last.Outcomes["malformed"], ShouldEqual, 0)
			})

			Convey("Then the submission row uses the form layout", func() {
				rows, _ := store.ReadRows(ctx, "Form Responses 1")
				So(rows[0][0], ShouldEqual, "1/10/2024 18:30:00")
			})

			Convey("Then the record row uses the configured layout", func() {
				rows, _ := store.ReadRows(ctx, "Points")
				So(rows, ShouldResemble, [][]string{{"ab12", "Ada", "Byron", "No", "2", "2024-01-10 6:30 PM"}})
			})

			Convey("Then a restarted service warms LastUpdate from the record table", func() {
				again := service.New(
					service.WithStore(store),
					service.WithReconcileOptions(reconcile.WithTimestampLayout(layout)),
					service.WithSyncInterval(0),
				)
				So(again.Start(ctx), ShouldBeNil)
				defer func() { _ = again.Stop(ctx) }()
				m, err := again.Member(ctx, "ab12")
				So(err, ShouldBeNil)
				So(m.LastUpdate.Equal(clock()), ShouldBeTrue)
			})
		})
	})
}

// slowStore holds every read until release is closed or ctx ends.
type slowStore struct {
	*repository.MemoryStore
	release chan struct{}
}

func (s *slowStore) ReadRows(ctx context.Context, name string) ([][]string, error) {
	select {
	case <-s.release:
		return s.MemoryStore.ReadRows(ctx, name)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shortLocker hands out leases that expire quickly and can be revoked.
type shortLocker struct {
	lost chan struct{}
}

func (l *shortLocker) Acquire(context.Context, string) (lock.Lease, error) {
	return &shortLease{lost: l.lost}, nil
}

type shortLease struct {
	lost      chan struct{}
	mu        sync.Mutex
	refreshes int
}

func (l *shortLease) Release(context.Context) error { return nil }

func (l *shortLease) TTL() time.Duration { return 30 * time.Millisecond }

func (l *shortLease) Refresh(context.Context) error {
	l.mu.Lock()
	l.refreshes++
	l.mu.Unlock()
	select {
	case <-l.lost:
		return lock.ErrNotHeld
	default:
		return nil
	}
}

func TestService_RunBounds(t *testing.T) {
	Convey("Given a store whose reads stall", t, func() {
		ctx := context.Background()
		store := &slowStore{MemoryStore: seededStore(), release: make(chan struct{})}

		Convey("When the run timeout passes", func() {
			svc := service.New(service.WithStore(store), service.WithRunTimeout(20*time.Millisecond))
			report, err := svc.Reconcile(ctx, model.Trigger{ID: "t-1", Source: model.SourceManual})

			Convey("Then the run fails and the record table is untouched", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(report.Error, ShouldNotBeEmpty)
				rows, _ := store.MemoryStore.ReadRows(ctx, "Points")
				So(rows, ShouldHaveLength, 1)
				So(rows[0][0], ShouldEqual, "stale")
			})
		})

		Convey("When the lock lease is lost mid-run", func() {
			locker := &shortLocker{lost: make(chan struct{})}
			svc := service.New(service.WithStore(store), service.WithLocker(locker), service.WithRunTimeout(0))
			close(locker.lost)
			_, err := svc.Reconcile(ctx, model.Trigger{ID: "t-2", Source: model.SourceManual})

			Convey("Then the run stops before writing", func() {
				So(errors.Is(err, service.ErrLockLost), ShouldBeTrue)
				So(errors.Is(err, lock.ErrNotHeld), ShouldBeTrue)
				rows, _ := store.MemoryStore.ReadRows(ctx, "Points")
				So(rows[0][0], ShouldEqual, "stale")
			})
		})
	})

	Convey("Given a run slower than the lease TTL", t, func() {
		ctx := context.Background()
		store := &slowStore{MemoryStore: seededStore(), release: make(chan struct{})}
		lease := &shortLease{lost: make(chan struct{})}
		svc := service.New(service.WithStore(store), service.WithLocker(leaseLocker{lease}))

		go func() {
			time.Sleep(100 * time.Millisecond)
			close(store.release)
		}()
		_, err := svc.Reconcile(ctx, model.Trigger{ID: "t-3", Source: model.SourceManual})

		Convey("Then the lease is refreshed and the run completes", func() {
			So(err, ShouldBeNil)
			lease.mu.Lock()
			defer lease.mu.Unlock()
			So(lease.refreshes, ShouldBeGreaterThanOrEqualTo, 2)
		})
	})
}

type leaseLocker struct{ lease lock.Lease }

func (l leaseLocker) Acquire(context.Context, string) (lock.Lease, error) { return l.lease, nil }
