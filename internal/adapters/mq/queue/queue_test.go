package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

func trigger(id, source string) model.Trigger {
	return model.Trigger{ID: id, Source: source, At: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, trigger("t1", model.SourceTimer)) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "t1" || got.Source != model.SourceTimer {
		t.Errorf("unexpected trigger %+v", got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, trigger("t1", model.SourceForm)) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, trigger("t2", model.SourceForm)) {
		t.Error("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, trigger("t3", model.SourceForm)) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_Coalescing(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithCoalescing(true))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !q.Enqueue(ctx, trigger(fmt.Sprintf("t%d", i), model.SourceForm)) {
			t.Fatalf("expected coalesced enqueue %d to be accepted", i)
		}
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected one pending trigger, got %d", l)
	}

	ch := q.Dequeue(ctx)
	if got := <-ch; got.ID != "t0" {
		t.Errorf("expected the first trigger to be kept, got %s", got.ID)
	}

	if !q.Enqueue(ctx, trigger("t5", model.SourceTimer)) {
		t.Error("expected enqueue after drain to succeed")
	}
	select {
	case got := <-ch:
		if got.ID != "t5" {
			t.Errorf("expected t5, got %s", got.ID)
		}
	case <-time.After(time.Second):
		t.Error("trigger after drain was not delivered")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.Enqueue(ctx, trigger(fmt.Sprintf("p%d-%d", id, j), model.SourceTimer))
			}
		}(i)
	}
	wg.Wait()

	if l := q.Len(ctx); l != 500 {
		t.Errorf("expected 500 pending triggers, got %d", l)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	q.Enqueue(ctx, trigger("t1", model.SourceCLI))
	if err := q.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, trigger("t2", model.SourceCLI)) {
		t.Error("expected enqueue after close to fail")
	}

	ch := q.Dequeue(ctx)
	if got, ok := <-ch; !ok || got.ID != "t1" {
		t.Errorf("expected pending trigger to drain, got %+v ok=%v", got, ok)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel was not closed")
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, trigger("t1", model.SourceForm)) {
		t.Error("expected enqueue with cancelled context to fail")
	}
}
