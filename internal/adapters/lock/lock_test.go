package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/rollcall/internal/adapters/lock"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalLocker(t *testing.T) {
	Convey("Given a local locker", t, func() {
		ctx := context.Background()
		l := lock.NewLocalLocker()

		Convey("When the lock is taken", func() {
			lease, err := l.Acquire(ctx, "reconcile")
			So(err, ShouldBeNil)

			Convey("Then a second acquire is refused", func() {
				_, err := l.Acquire(ctx, "reconcile")
				So(err, ShouldEqual, lock.ErrLocked)
			})

			Convey("Then other names are independent", func() {
				_, err := l.Acquire(ctx, "other")
				So(err, ShouldBeNil)
			})

			Convey("Then release frees it once", func() {
				So(lease.Release(ctx), ShouldBeNil)
				So(lease.Release(ctx), ShouldEqual, lock.ErrNotHeld)
				_, err := l.Acquire(ctx, "reconcile")
				So(err, ShouldBeNil)
			})

			Convey("Then it never expires and refreshes until released", func() {
				So(lease.TTL(), ShouldEqual, time.Duration(0))
				So(lease.Refresh(ctx), ShouldBeNil)
				So(lease.Release(ctx), ShouldBeNil)
				So(lease.Refresh(ctx), ShouldEqual, lock.ErrNotHeld)
			})

			Convey("Then KeepAlive waits for the context", func() {
				kctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
				defer cancel()
				So(lock.KeepAlive(kctx, lease), ShouldBeNil)
			})
		})
	})
}

func TestRedisLocker(t *testing.T) {
	Convey("Given a Redis locker", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		client, err := lock.Connect(ctx, mr.Addr())
		So(err, ShouldBeNil)
		Reset(func() { _ = client.Close() })

		l := lock.NewRedisLocker(client, lock.WithTTL(time.Second), lock.WithPrefix("test:"))

		Convey("When the lock is taken", func() {
			lease, err := l.Acquire(ctx, "reconcile")
			So(err, ShouldBeNil)

			Convey("Then the key carries a TTL", func() {
				So(mr.Exists("test:reconcile"), ShouldBeTrue)
				So(mr.TTL("test:reconcile"), ShouldEqual, time.Second)
			})

			Convey("Then another replica is refused", func() {
				other := lock.NewRedisLocker(client, lock.WithPrefix("test:"))
				_, err := other.Acquire(ctx, "reconcile")
				So(err, ShouldEqual, lock.ErrLocked)
			})

			Convey("Then release deletes the key", func() {
				So(lease.Release(ctx), ShouldBeNil)
				So(mr.Exists("test:reconcile"), ShouldBeFalse)
			})

			Convey("Then refresh pushes the expiry out", func() {
				So(lease.TTL(), ShouldEqual, time.Second)
				mr.FastForward(800 * time.Millisecond)
				So(lease.Refresh(ctx), ShouldBeNil)
				So(mr.TTL("test:reconcile"), ShouldEqual, time.Second)
				mr.FastForward(800 * time.Millisecond)
				So(mr.Exists("test:reconcile"), ShouldBeTrue)
			})

			Convey("Then an expired lease cannot be refreshed", func() {
				mr.FastForward(2 * time.Second)
				So(lease.Refresh(ctx), ShouldEqual, lock.ErrNotHeld)
				next, err := l.Acquire(ctx, "reconcile")
				So(err, ShouldBeNil)
				So(lease.Refresh(ctx), ShouldEqual, lock.ErrNotHeld)
				So(next.Release(ctx), ShouldBeNil)
			})

			Convey("Then an expired lease cannot release the new holder", func() {
				mr.FastForward(2 * time.Second)
				next, err := l.Acquire(ctx, "reconcile")
				So(err, ShouldBeNil)

				So(lease.Release(ctx), ShouldEqual, lock.ErrNotHeld)
				So(mr.Exists("test:reconcile"), ShouldBeTrue)
				So(next.Release(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a short Redis lease kept alive", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		mr := miniredis.RunT(t)
		client, err := lock.Connect(ctx, mr.Addr())
		So(err, ShouldBeNil)
		Reset(func() {
			cancel()
			_ = client.Close()
		})

		l := lock.NewRedisLocker(client, lock.WithTTL(300*time.Millisecond))
		lease, err := l.Acquire(ctx, "reconcile")
		So(err, ShouldBeNil)
		key := lock.DefaultPrefix + "reconcile"

		done := make(chan error, 1)
		go func() { done <- lock.KeepAlive(ctx, lease) }()

		Convey("When most of the TTL has elapsed", func() {
			mr.FastForward(250 * time.Millisecond)

			Convey("Then the next tick restores the full TTL", func() {
				So(waitFor(func() bool { return mr.TTL(key) > 200*time.Millisecond }), ShouldBeTrue)
				mr.FastForward(250 * time.Millisecond)
				So(mr.Exists(key), ShouldBeTrue)
			})
		})

		Convey("When the key disappears", func() {
			mr.Del(key)

			Convey("Then KeepAlive reports the lease lost", func() {
				var err error
				select {
				case err = <-done:
				case <-time.After(2 * time.Second):
					err = errors.New("keepalive did not stop")
				}
				So(err, ShouldEqual, lock.ErrNotHeld)
			})
		})

		Convey("When the context ends", func() {
			cancel()

			Convey("Then KeepAlive returns cleanly", func() {
				So(<-done, ShouldBeNil)
			})
		})
	})

	Convey("Given a URL for an unreachable Redis", t, func() {
		_, err := lock.Connect(context.Background(), "redis://127.0.0.1:1/0")

		Convey("Then Connect fails", func() {
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a client built by the caller", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		Reset(func() { _ = client.Close() })
		l := lock.NewRedisLocker(client)

		Convey("Then the default prefix is used", func() {
			_, err := l.Acquire(context.Background(), "reconcile")
			So(err, ShouldBeNil)
			So(mr.Exists(lock.DefaultPrefix+"reconcile"), ShouldBeTrue)
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
