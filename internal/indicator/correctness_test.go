package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func linear(n int, from, to float64) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = to
		return out
	}
	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5, seeded with the first price.
	// Prices: 100, 102, 104, 103, 105
	//
	// 0: 100
	// 1: 102*0.5 + 100*0.5     = 101
	// 2: 104*0.5 + 101*0.5     = 102.5
	// 3: 103*0.5 + 102.5*0.5   = 102.75
	// 4: 105*0.5 + 102.75*0.5  = 103.875
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{100, 101, 102.5, 102.75, 103.875}

	got := EMASeries(prices, 3)
	if len(got) != len(prices) {
		t.Fatalf("len = %d, want %d", len(got), len(prices))
	}
	for i := range expected {
		assertClose(t, "EMA(3)", got[i], expected[i], 1e-9)
	}
}

func TestEMA_SeedAndLength(t *testing.T) {
	for _, n := range []int{1, 2, 7, 50, 120} {
		series := linear(n, 95, 100)
		out := EMASeries(series, 21)
		if len(out) != n {
			t.Errorf("n=%d: len = %d", n, len(out))
		}
		if out[0] != series[0] {
			t.Errorf("n=%d: out[0] = %v, want %v", n, out[0], series[0])
		}
	}

	single := EMASeries([]float64{42}, 8)
	if single[0] != 42 {
		t.Errorf("single element: got %v, want 42", single[0])
	}
	if len(EMASeries(nil, 8)) != 0 {
		t.Error("empty input should give empty output")
	}
}

func TestEMA_Ready(t *testing.T) {
	ema := NewEMA(3)
	ready := []bool{false, false, true, true}
	for i, p := range []float64{1, 2, 3, 4} {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("update %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// SMA(3): (100+102+104)/3 = 102, (102+104+103)/3 = 103, (104+103+105)/3 = 104
	got := SMASeries([]float64{100, 102, 104, 103, 105}, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("first period-1 entries should be undefined, got %v", got[:2])
	}
	expected := []float64{102, 103, 104}
	for i, want := range expected {
		assertClose(t, "SMA(3)", got[i+2], want, 1e-9)
	}
}

func TestSMA_Partial(t *testing.T) {
	sma := NewSMA(5)
	sma.Update(10)
	sma.Update(20)
	if sma.Ready() {
		t.Fatal("should not be ready after 2 of 5")
	}
	assertClose(t, "partial", sma.Partial(), 15, 1e-9)
	if sma.Value() != 0 {
		t.Errorf("Value before ready = %v, want 0", sma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_InsufficientHistoryIsNeutral(t *testing.T) {
	for n := 0; n < 15; n++ {
		if got := RSIValue(linear(n, 1, 30), 14); got != 50 {
			t.Errorf("len=%d: RSI = %v, want exactly 50", n, got)
		}
	}
}

func TestRSI_NoLossesSaturates(t *testing.T) {
	if got := RSIValue(linear(40, 10, 50), 14); got != 100 {
		t.Errorf("monotonic rise: RSI = %v, want exactly 100", got)
	}
	if got := RSIValue(flat(20, 7), 14); got != 100 {
		t.Errorf("flat series: RSI = %v, want exactly 100", got)
	}
}

func TestRSI_Correctness_Period2(t *testing.T) {
	// Prices 1,2,1,2 → deltas +1,-1,+1
	// Seed: avgGain=(1+0)/2=0.5, avgLoss=(0+1)/2=0.5
	// Wilder: avgGain=(0.5*1+1)/2=0.75, avgLoss=(0.5*1+0)/2=0.25
	// RS=3 → RSI = 100 - 100/4 = 75
	assertClose(t, "RSI(2)", RSIValue([]float64{1, 2, 1, 2}, 2), 75, 1e-9)
}

func TestRSI_StreamingMatchesBatch(t *testing.T) {
	prices := []float64{
		100, 101, 100.5, 102, 101.5, 103, 102.5, 104,
		103.5, 105, 104.5, 106, 105.5, 107, 106.5, 108,
		107.5, 109, 108.5, 110,
	}
	r := NewRSI(14)
	for _, p := range prices {
		r.Update(p)
	}
	if !r.Ready() {
		t.Fatal("expected ready after 20 prices")
	}
	assertClose(t, "streaming vs batch", r.Value(), RSIValue(prices, 14), 1e-12)
	if v := r.Value(); v <= 50 || v >= 100 {
		t.Errorf("choppy uptrend RSI = %.2f, want in (50,100)", v)
	}
}

func TestStreaming_NamesAndWarmup(t *testing.T) {
	tests := []struct {
		ind    Streaming
		name   string
		warmup int // updates before Ready
	}{
		{NewEMA(3), "EMA", 3},
		{NewSMA(3), "SMA", 3},
		{NewRSI(2), "RSI", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ind.Name(); got != tt.name {
				t.Errorf("Name() = %q, want %q", got, tt.name)
			}
			for i, p := range []float64{10, 11, 10.5, 12, 11.5} {
				if ready := tt.ind.Ready(); ready != (i >= tt.warmup) {
					t.Errorf("Ready() after %d updates = %v", i, ready)
				}
				tt.ind.Update(p)
			}
			if v := tt.ind.Value(); math.IsNaN(v) || v <= 0 {
				t.Errorf("Value() = %v after warmup", v)
			}
		})
	}
}

// ────────────────────────────────────────────────────────────
// MACD Correctness
// ────────────────────────────────────────────────────────────

func TestMACD_Correctness_SmallPeriods(t *testing.T) {
	// fast=2 (k=2/3), slow=3 (k=1/2), signal=2 (k=2/3); prices 1,2,3
	// i1: fast=5/3, slow=3/2, line=1/6,   sig=1/9
	// i2: fast=23/9, slow=9/4, line=11/36, sig=13/54 → hist=7/108
	got := MACDWith([]float64{1, 2, 3}, 2, 3, 2)
	assertClose(t, "line", got.Line, 11.0/36, 1e-12)
	assertClose(t, "signal", got.Signal, 13.0/54, 1e-12)
	assertClose(t, "histogram", got.Histogram, 7.0/108, 1e-12)
}

func TestMACD_FlatAndEmpty(t *testing.T) {
	if got := MACD(flat(60, 100)); got != (MACDResult{}) {
		t.Errorf("flat series MACD = %+v, want zeros", got)
	}
	if got := MACD(nil); got != (MACDResult{}) {
		t.Errorf("empty MACD = %+v, want zeros", got)
	}
	up := MACD(linear(120, 95, 100))
	if up.Line <= 0 {
		t.Errorf("uptrend MACD line = %v, want > 0", up.Line)
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger Correctness
// ────────────────────────────────────────────────────────────

func TestBollinger_Correctness(t *testing.T) {
	// mean 5, population sd 2 → band [1, 9], last=9 → %B = 1
	got := Bollinger([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 2)
	if !got.Valid {
		t.Error("expected valid band")
	}
	assertClose(t, "mid", got.Mid, 5, 1e-12)
	assertClose(t, "upper", got.Upper, 9, 1e-12)
	assertClose(t, "lower", got.Lower, 1, 1e-12)
	assertClose(t, "%B", got.PercentB, 1, 1e-12)
	assertClose(t, "bandwidth", got.BandwidthRatio, 1.6, 1e-12)
}

func TestBollinger_ZeroWidthBand(t *testing.T) {
	got := Bollinger(flat(30, 100), 20, 2)
	if got.PercentB != 0.5 {
		t.Errorf("zero-width %%B = %v, want 0.5", got.PercentB)
	}
	if got.BandwidthRatio != 0 {
		t.Errorf("zero-width bandwidth = %v, want 0", got.BandwidthRatio)
	}
}

func TestBollinger_ShortHistoryFallback(t *testing.T) {
	got := Bollinger([]float64{100, 100}, 20, 2)
	if got.Valid {
		t.Error("fallback band should be flagged invalid")
	}
	assertClose(t, "upper", got.Upper, 100.2, 1e-9)
	assertClose(t, "lower", got.Lower, 99.5, 1e-9)
	assertClose(t, "%B", got.PercentB, 0.5/0.7, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Stochastic Correctness
// ────────────────────────────────────────────────────────────

func TestStochastic_Correctness(t *testing.T) {
	closes := linear(14, 1, 14)
	highs := make([]float64, len(closes))
	lows := make([]float64, len(closes))
	for i, c := range closes {
		highs[i] = c + 1
		lows[i] = c - 1
	}
	// i=13: hh=15 ll=0 close=14 → 93.333
	// i=12: hh=14 ll=0 close=13 → 92.857
	// i=11: hh=13 ll=0 close=12 → 92.308
	got := Stochastic(highs, lows, closes, 14, 3)
	assertClose(t, "%K", got.K, 14.0/15*100, 1e-9)
	wantD := (14.0/15 + 13.0/14 + 12.0/13) / 3 * 100
	assertClose(t, "%D", got.D, wantD, 1e-9)
	if got.Valid {
		t.Error("14 points < kPeriod+dPeriod-1 should not be valid")
	}
}

func TestStochastic_FlatWindowIsNeutral(t *testing.T) {
	c := flat(30, 10)
	got := Stochastic(c, c, c, 14, 3)
	if got.K != 50 || got.D != 50 {
		t.Errorf("flat stochastic = %+v, want K=D=50", got)
	}
	empty := Stochastic(nil, nil, nil, 14, 3)
	if empty.K != 50 || empty.D != 50 {
		t.Errorf("empty stochastic = %+v, want K=D=50", empty)
	}
}

// ────────────────────────────────────────────────────────────
// ATR Correctness
// ────────────────────────────────────────────────────────────

func TestATR_Correctness(t *testing.T) {
	// TR0 = 11-9 = 2; TR1 = max(16-14, |16-10|, |14-10|) = 6
	// EMA(3), k=0.5: 6*0.5 + 2*0.5 = 4
	got := ATR([]float64{11, 16}, []float64{9, 14}, []float64{10, 15}, 3)
	assertClose(t, "ATR", got, 4, 1e-12)
}

func TestATR_MismatchedHighLowFallsBackToCloses(t *testing.T) {
	closes := []float64{10, 12, 11}
	// TR over closes: 0, 2, 1 → EMA(3): 0 → 1 → 1
	got := ATR([]float64{1}, nil, closes, 3)
	assertClose(t, "ATR", got, 1, 1e-12)
	if ATR(nil, nil, nil, 14) != 0 {
		t.Error("empty ATR should be 0")
	}
}
