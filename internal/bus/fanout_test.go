package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"forecast-engine/internal/model"
)

type recordingSink struct {
	name  string
	err   error
	block chan struct{}

	mu  sync.Mutex
	got []string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Consume(ctx context.Context, f model.Forecast) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.got = append(s.got, f.AssetID)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) assets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	fo.Attach(a)
	fo.Attach(b)

	input := make(chan model.Forecast, 10)
	input <- model.Forecast{AssetID: "BTC"}
	input <- model.Forecast{AssetID: "ETH"}
	close(input)

	// Run returns after input closes and both sinks drain.
	fo.Run(context.Background(), input)

	for _, s := range []*recordingSink{a, b} {
		got := s.assets()
		if len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
			t.Errorf("%s: got %v, want [BTC ETH]", s.name, got)
		}
	}
	if names := fo.Sinks(); len(names) != 2 || names[0] != "a" {
		t.Errorf("Sinks() = %v", names)
	}
}

func TestFanOut_ReportsSinkErrors(t *testing.T) {
	fo := New(4)
	fo.Attach(&recordingSink{name: "broken", err: errors.New("boom")})

	var mu sync.Mutex
	var failed []string
	fo.OnError = func(sink string, err error) {
		mu.Lock()
		failed = append(failed, sink)
		mu.Unlock()
	}

	input := make(chan model.Forecast, 1)
	input <- model.Forecast{AssetID: "BTC"}
	close(input)
	fo.Run(context.Background(), input)

	if len(failed) != 1 || failed[0] != "broken" {
		t.Errorf("OnError calls = %v", failed)
	}
}

func TestFanOut_DropsForSlowSink(t *testing.T) {
	fo := New(1)
	slow := &recordingSink{name: "slow", block: make(chan struct{})}
	fast := &recordingSink{name: "fast"}
	fo.Attach(slow)
	fo.Attach(fast)

	var mu sync.Mutex
	drops := 0
	fo.OnDrop = func(sink string) {
		mu.Lock()
		if sink == "slow" {
			drops++
		}
		mu.Unlock()
	}

	input := make(chan model.Forecast)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	// Slow worker holds the first forecast, the second fills its queue,
	// the remaining ones are dropped.
	for i := 0; i < 5; i++ {
		input <- model.Forecast{AssetID: "BTC"}
		time.Sleep(5 * time.Millisecond)
	}
	close(input)
	close(slow.block)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if len(fast.assets()) != 5 {
		t.Errorf("fast sink got %d, want 5", len(fast.assets()))
	}
	if drops == 0 || len(slow.assets())+drops != 5 {
		t.Errorf("slow sink got %d with %d drops", len(slow.assets()), drops)
	}
}

func TestFanOut_StopsOnCancel(t *testing.T) {
	fo := New(2)
	fo.Attach(&recordingSink{name: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fo.Run(ctx, make(chan model.Forecast))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run ignored cancellation")
	}
	if st := fo.ChannelStats(); len(st) != 1 || st[0].Cap != 2 {
		t.Errorf("ChannelStats = %+v", st)
	}
}
