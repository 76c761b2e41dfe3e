package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakyKV fails every call while down is set.
type flakyKV struct {
	mu   sync.Mutex
	down bool
	data map[string][]byte
}

func newFlakyKV() *flakyKV { return &flakyKV{data: make(map[string][]byte)} }

func (f *flakyKV) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *flakyKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errors.New("connection refused")
	}
	return f.data[key], nil
}

func (f *flakyKV) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.data[key] = value
	return nil
}

func (f *flakyKV) Close() error { return nil }

func (f *flakyKV) value(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.data[key])
}

func TestGuardedKV_HoldsWritesWhileOpen(t *testing.T) {
	ctx := context.Background()
	inner := newFlakyKV()
	cb, clock := newTestBreaker(1)
	g := NewGuardedKV(ctx, inner, cb)

	buffered := 0
	g.OnBuffer = func() { buffered++ }
	flushed := make(chan int, 1)
	g.OnFlush = func(n int) { flushed <- n }

	inner.setDown(true)
	if err := g.Set(ctx, "ledger", []byte("v1")); err == nil {
		t.Fatalf("first failure should surface while the breaker is closed")
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("breaker should be open")
	}

	if err := g.Set(ctx, "ledger", []byte("v2")); err != nil {
		t.Fatalf("write while open should be held, got %v", err)
	}
	if err := g.Set(ctx, "ledger", []byte("v3")); err != nil {
		t.Fatalf("write while open should be held, got %v", err)
	}
	if g.PendingCount() != 1 || buffered != 2 {
		t.Errorf("pending=%d buffered=%d, want 1 key and 2 holds", g.PendingCount(), buffered)
	}

	got, err := g.Get(ctx, "ledger")
	if err != nil || string(got) != "v3" {
		t.Errorf("Get while open = %q, %v; want held value", got, err)
	}

	// Recovery: the probe succeeds and held writes replay in the background.
	inner.setDown(false)
	clock.t = clock.t.Add(11 * time.Second)
	if _, err := g.Get(ctx, "other"); err != nil {
		t.Fatalf("probe read: %v", err)
	}

	select {
	case n := <-flushed:
		if n != 1 {
			t.Errorf("flushed %d keys, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("held writes were not replayed")
	}
	if inner.value("ledger") != "v3" {
		t.Errorf("inner value = %q, want v3", inner.value("ledger"))
	}
	if g.PendingCount() != 0 {
		t.Errorf("pending after replay = %d", g.PendingCount())
	}
}

func TestGuardedKV_CloseReplays(t *testing.T) {
	ctx := context.Background()
	inner := newFlakyKV()
	cb, _ := newTestBreaker(1)
	g := NewGuardedKV(ctx, inner, cb)

	inner.setDown(true)
	g.Set(ctx, "k", []byte("a"))
	g.Set(ctx, "k", []byte("b"))
	inner.setDown(false)

	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if inner.value("k") != "b" {
		t.Errorf("Close did not replay the held write, got %q", inner.value("k"))
	}
}
