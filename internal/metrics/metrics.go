package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"forecast-engine/internal/model"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	// Refresh cycle
	CyclesTotal    prometheus.Counter
	CycleDur       prometheus.Histogram
	ComputeDur     prometheus.Histogram
	FetchErrors    *prometheus.CounterVec // labels: asset
	ForecastsTotal *prometheus.CounterVec // labels: asset

	// Latest forecast per asset
	ForecastMovePct *prometheus.GaugeVec // labels: asset, horizon
	Sentiment       *prometheus.GaugeVec // labels: asset (-1 bearish, 0 neutral, 1 bullish)
	SentimentFlips  *prometheus.CounterVec

	// Sinks
	SinkErrors *prometheus.CounterVec // labels: sink
	SinkDrops  *prometheus.CounterVec // labels: sink

	// Ledger
	LedgerEntries      prometheus.Gauge
	LedgerRecorded     prometheus.Counter
	LedgerResolved     prometheus.Counter
	LedgerPending      *prometheus.GaugeVec // labels: horizon
	LedgerHitRate      *prometheus.GaugeVec // labels: horizon
	LedgerMeanPctError *prometheus.GaugeVec // labels: horizon
	LedgerFlushErrors  prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Live feed
	WSClients prometheus.Gauge
	FeedLag   prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_cycles_total",
			Help: "Total refresh cycles run",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_cycle_duration_seconds",
			Help:    "Refresh cycle latency including fetch, fusion and persistence",
			Buckets: prometheus.DefBuckets,
		}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_compute_duration_seconds",
			Help:    "Signal fusion latency per asset",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_fetch_errors_total",
			Help: "Market data fetch failures per asset",
		}, []string{"asset"}),
		ForecastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_forecasts_total",
			Help: "Forecasts computed per asset",
		}, []string{"asset"}),

		ForecastMovePct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forecaster_forecast_move_pct",
			Help: "Latest forecast move vs observed price, in percent",
		}, []string{"asset", "horizon"}),
		Sentiment: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forecaster_sentiment",
			Help: "Latest consensus sentiment (-1 bearish, 0 neutral, 1 bullish)",
		}, []string{"asset"}),
		SentimentFlips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_sentiment_flips_total",
			Help: "Bullish/bearish sentiment reversals per asset",
		}, []string{"asset"}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_sink_errors_total",
			Help: "Forecast sink failures",
		}, []string{"sink"}),
		SinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_sink_drops_total",
			Help: "Forecasts dropped because a sink queue was full",
		}, []string{"sink"}),

		LedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_ledger_entries",
			Help: "Entries retained in the prediction ledger",
		}),
		LedgerRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_ledger_recorded_total",
			Help: "Forecasts recorded in the ledger",
		}),
		LedgerResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_ledger_resolved_total",
			Help: "Ledger horizons resolved against a realized price",
		}),
		LedgerPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forecaster_ledger_pending",
			Help: "Pending ledger entries per horizon",
		}, []string{"horizon"}),
		LedgerHitRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forecaster_ledger_hit_rate_pct",
			Help: "Directional hit-rate of resolved forecasts per horizon",
		}, []string{"horizon"}),
		LedgerMeanPctError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forecaster_ledger_mean_pct_error",
			Help: "Mean absolute percentage error of resolved forecasts per horizon",
		}, []string{"horizon"}),
		LedgerFlushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_ledger_flush_errors_total",
			Help: "Failed ledger persistence attempts",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_redis_buffered_writes_total",
			Help: "Ledger writes held locally while the Redis breaker was open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_ws_clients",
			Help: "Connected live-feed WebSocket clients",
		}),
		FeedLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_feed_lag_seconds",
			Help:    "Delay between forecast computation and live-feed broadcast",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.ComputeDur,
		m.FetchErrors,
		m.ForecastsTotal,
		m.ForecastMovePct,
		m.Sentiment,
		m.SentimentFlips,
		m.SinkErrors,
		m.SinkDrops,
		m.LedgerEntries,
		m.LedgerRecorded,
		m.LedgerResolved,
		m.LedgerPending,
		m.LedgerHitRate,
		m.LedgerMeanPctError,
		m.LedgerFlushErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSClients,
		m.FeedLag,
	)

	return m
}

// ObserveForecast records the latest forecast of an asset.
func (m *Metrics) ObserveForecast(f model.Forecast) {
	m.ForecastsTotal.WithLabelValues(f.AssetID).Inc()
	if f.ObservedPrice != 0 {
		m.ForecastMovePct.WithLabelValues(f.AssetID, "short").Set((f.ShortHorizonPrice/f.ObservedPrice - 1) * 100)
		m.ForecastMovePct.WithLabelValues(f.AssetID, "long").Set((f.LongHorizonPrice/f.ObservedPrice - 1) * 100)
	}
	m.Sentiment.WithLabelValues(f.AssetID).Set(sentimentValue(f.Sentiment))
}

// ObserveLedger publishes ledger size and accuracy.
func (m *Metrics) ObserveLedger(entries int, stats model.LedgerStats) {
	m.LedgerEntries.Set(float64(entries))
	observeHorizon(m, "short", stats.Short)
	observeHorizon(m, "long", stats.Long)
}

func observeHorizon(m *Metrics, horizon string, s model.HorizonStats) {
	m.LedgerPending.WithLabelValues(horizon).Set(float64(s.Pending))
	// Accuracy gauges keep their last value until something resolves.
	if s.HitRate != nil {
		m.LedgerHitRate.WithLabelValues(horizon).Set(*s.HitRate)
	}
	if s.MeanPctError != nil {
		m.LedgerMeanPctError.WithLabelValues(horizon).Set(*s.MeanPctError)
	}
}

func sentimentValue(d model.Direction) float64 {
	switch d {
	case model.Bullish:
		return 1
	case model.Bearish:
		return -1
	default:
		return 0
	}
}
