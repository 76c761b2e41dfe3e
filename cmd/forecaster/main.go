package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"forecast-engine/config"
	"forecast-engine/internal/forecaster"
	"forecast-engine/internal/gateway"
	"forecast-engine/internal/ledger"
	"forecast-engine/internal/logger"
	"forecast-engine/internal/metrics"
	"forecast-engine/internal/model"
	"forecast-engine/internal/notification"
	fsignal "forecast-engine/internal/signal"
	redisstore "forecast-engine/internal/store/redis"
	sqlitestore "forecast-engine/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[forecaster] %v\n", err)
		os.Exit(1)
	}
	log := logger.Init("forecaster", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting",
		slog.Any("assets", cfg.Assets),
		slog.String("store", cfg.StoreBackend),
		slog.String("market_source", cfg.MarketSource),
		slog.Bool("journal", cfg.Journal),
		slog.String("weights_file", cfg.WeightsFile))

	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.StoreBackend, cfg.Assets)

	// ---- Redis ----
	var rdb *goredis.Client
	if cfg.UsesRedis() {
		var err error
		rdb, err = redisstore.Dial(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		health.SetRedisConnected(true)
	}

	// ---- SQLite ----
	var db *sqlitestore.Store
	var sqlDB *sql.DB
	if cfg.UsesSQLite() {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("sqlite dir: %w", err)
		}
		var err error
		db, err = sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		sqlDB = db.DB()
		health.SetSQLiteOK(true)
	}

	// ---- Ledger persistence ----
	var kv model.KVStore
	switch cfg.StoreBackend {
	case "redis":
		cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Warn("[redis-kv] circuit breaker transition",
				slog.String("from", from.String()), slog.String("to", to.String()))
		}
		// Background context: held writes must still replay during shutdown.
		guarded := redisstore.NewGuardedKV(context.Background(), redisstore.NewKV(rdb), cb)
		guarded.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
		guarded.OnFlush = func(n int) { log.Info("[redis-kv] replayed held writes", slog.Int("count", n)) }
		defer guarded.Close()
		kv = guarded
	case "sqlite":
		kv = db
	default:
		log.Warn("ledger is not persisted across restarts", slog.String("store", cfg.StoreBackend))
		kv = ledger.NewMemoryStore()
	}

	led, err := ledger.Open(ctx, kv, cfg.Ledger, log)
	if err != nil {
		return err
	}

	// ---- Market data ----
	var src model.MarketSource
	switch cfg.MarketSource {
	case "redis":
		src = redisstore.NewSeriesReader(rdb, redisstore.SeriesConfig{
			HourlyTF:     cfg.HourlyTF,
			DailyTF:      cfg.DailyTF,
			HourlyPoints: int64(cfg.HourlyPoints),
			DailyPoints:  int64(cfg.DailyPoints),
		})
	case "sqlite":
		src = sqlitestore.NewCandleSource(db, cfg.HourlyTF, cfg.DailyTF, cfg.HourlyPoints, cfg.DailyPoints)
	}

	// ---- Sinks ----
	hub := gateway.NewHub(log)
	hub.OnClientCount = func(n int) { prom.WSClients.Set(float64(n)) }
	hub.OnBroadcast = func(lag time.Duration) { prom.FeedLag.Observe(lag.Seconds()) }
	sinks := []model.ForecastSink{hub}

	if rdb != nil {
		sinks = append(sinks, redisstore.NewPublisher(rdb))
	}

	var journal model.ForecastJournal
	if cfg.Journal {
		journal = db
		sinks = append(sinks, db)
		journalCtx, stopJournal := context.WithCancel(context.Background())
		journalDone := make(chan struct{})
		go func() {
			db.Run(journalCtx)
			close(journalDone)
		}()
		// Runs before db.Close: drain the journal queue first.
		defer func() {
			stopJournal()
			<-journalDone
		}()
	}

	notifiers := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	flips := notification.NewFlipDetector(notifiers)
	flips.OnFlip = func(assetID string, _, _ model.Direction) {
		prom.SentimentFlips.WithLabelValues(assetID).Inc()
	}
	sinks = append(sinks, flips)

	// ---- Service ----
	svc, err := forecaster.New(cfg.Assets, cfg.RefreshCron, forecaster.Deps{
		Source:  src,
		Engine:  fsignal.NewEngine(cfg.Signal),
		Ledger:  led,
		Sinks:   sinks,
		Metrics: prom,
		Health:  health,
		Log:     log,
	})
	if err != nil {
		return err
	}

	// ---- HTTP surfaces ----
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, prometheus.DefaultGatherer)
	metricsSrv.Start()
	health.StartLivenessChecker(ctx, rdb, sqlDB, 10*time.Second)

	gw := gateway.NewServer(cfg.HTTPAddr, gateway.NewAPI(hub, led, journal, log).Handler())
	gw.Start()

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gw.Stop(stopCtx)
		metricsSrv.Stop(stopCtx)
	}()

	return svc.Run(ctx)
}
