package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

type job struct {
	id  int
	tag string
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job{id: 1, tag: "emotion"}) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.id != 1 || got.tag != "emotion" {
		t.Errorf("expected job 1, got %+v", got)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, job{id: 1}) || !q.Enqueue(ctx, job{id: 2}) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, job{id: 3}) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(100))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if !q.Enqueue(ctx, job{id: i}) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	_ = q.Close()

	want := 0
	for got := range q.Dequeue(ctx) {
		if got.id != want {
			t.Fatalf("expected job %d, got %d", want, got.id)
		}
		want++
	}
	if want != 50 {
		t.Errorf("expected 50 jobs drained after close, got %d", want)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue[job]()
	ctx := context.Background()

	if q.IsClosed() {
		t.Error("expected queue to be open")
	}
	if err := q.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected second close to be a no-op, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, job{id: 1}) {
		t.Error("expected enqueue on closed queue to fail")
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue[job]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, job{id: 1}) {
		t.Error("expected enqueue with cancelled context to fail")
	}

	select {
	case _, ok := <-q.Dequeue(ctx):
		if ok {
			t.Error("expected no items")
		}
	case <-time.After(time.Second):
		t.Error("expected dequeue channel to close on cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue[job](WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(ctx, job{id: p*100 + i})
			}
		}(p)
	}
	wg.Wait()

	if l := q.Len(); l != 1000 {
		t.Errorf("expected 1000 queued jobs, got %d", l)
	}
}
