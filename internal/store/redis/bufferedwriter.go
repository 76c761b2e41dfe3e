package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"forecast-engine/internal/model"
)

// GuardedKV wraps a KVStore with a circuit breaker. While the breaker is
// open, writes are held locally (last value per key wins) and replayed when
// it closes again; reads of a held key are served from the local copy.
type GuardedKV struct {
	inner model.KVStore
	cb    *CircuitBreaker
	ctx   context.Context

	mu      sync.Mutex
	pending map[string][]byte

	// Callbacks (optional, for metrics)
	OnBuffer func()          // a write was held locally
	OnFlush  func(count int) // held writes were replayed
}

// NewGuardedKV wraps inner. ctx bounds the background replay.
func NewGuardedKV(ctx context.Context, inner model.KVStore, cb *CircuitBreaker) *GuardedKV {
	g := &GuardedKV{
		inner:   inner,
		cb:      cb,
		ctx:     ctx,
		pending: make(map[string][]byte),
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go g.flush()
		}
	}
	return g
}

// Get reads through the breaker, preferring a locally held write.
func (g *GuardedKV) Get(ctx context.Context, key string) ([]byte, error) {
	g.mu.Lock()
	if v, ok := g.pending[key]; ok {
		g.mu.Unlock()
		return append([]byte(nil), v...), nil
	}
	g.mu.Unlock()

	var out []byte
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.inner.Get(ctx, key)
		return err
	})
	return out, err
}

// Set writes through the breaker. A rejected write is held locally and
// reported as success.
func (g *GuardedKV) Set(ctx context.Context, key string, value []byte) error {
	err := g.cb.Execute(func() error {
		return g.inner.Set(ctx, key, value)
	})
	if errors.Is(err, ErrCircuitOpen) {
		g.hold(key, value)
		return nil
	}
	if err == nil {
		g.mu.Lock()
		delete(g.pending, key)
		g.mu.Unlock()
	}
	return err
}

func (g *GuardedKV) hold(key string, value []byte) {
	g.mu.Lock()
	g.pending[key] = append([]byte(nil), value...)
	g.mu.Unlock()

	if g.OnBuffer != nil {
		g.OnBuffer()
	}
}

// flush replays held writes through the inner store.
func (g *GuardedKV) flush() {
	g.mu.Lock()
	if len(g.pending) == 0 {
		g.mu.Unlock()
		return
	}
	toFlush := g.pending
	g.pending = make(map[string][]byte)
	g.mu.Unlock()

	flushed := 0
	for key, value := range toFlush {
		if err := g.inner.Set(g.ctx, key, value); err != nil {
			slog.Warn("replaying held write failed", slog.String("key", key), slog.String("error", err.Error()))
			g.mu.Lock()
			if _, newer := g.pending[key]; !newer {
				g.pending[key] = value
			}
			g.mu.Unlock()
			continue
		}
		flushed++
	}

	slog.Info("replayed held writes", slog.Int("count", flushed))
	if g.OnFlush != nil {
		g.OnFlush(flushed)
	}
}

// PendingCount returns the number of keys waiting to be replayed.
func (g *GuardedKV) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Close makes a last replay attempt and closes the inner store.
func (g *GuardedKV) Close() error {
	g.flush()
	return g.inner.Close()
}
