// cmd/candlesim generates random-walk hourly candles (and daily candles
// resampled from them) for local runs of the forecaster without a real
// market-data feed. It backfills history, then optionally keeps emitting one
// simulated hour per interval.
//
// Config (env vars):
//
//	SIM_ASSETS          comma-separated assets (default: "BTC,ETH")
//	SIM_TARGET          redis | sqlite | both (default: "sqlite")
//	SIM_BACKFILL_HOURS  hours of history written at startup (default: 1080)
//	SIM_INTERVAL_MS     wall-clock ms per simulated hour, 0 = backfill only (default: 0)
//	SIM_SEED            random seed, 0 = time-based (default: 0)
//	HOURLY_TF_SEC, DAILY_TF_SEC, SQLITE_PATH, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"forecast-engine/config"
	"forecast-engine/internal/logger"
	"forecast-engine/internal/model"
	redisstore "forecast-engine/internal/store/redis"
	sqlitestore "forecast-engine/internal/store/sqlite"
)

// sink receives generated candles.
type sink struct {
	name   string
	write  func(ctx context.Context, candles []model.Candle) error
	upsert bool // accepts the forming daily candle repeatedly
}

func main() {
	log := logger.Init("candlesim", slog.LevelInfo)

	assets := config.ParseList(envOrDefault("SIM_ASSETS", "BTC,ETH"))
	target := strings.ToLower(envOrDefault("SIM_TARGET", "sqlite"))
	backfill := envIntOrDefault("SIM_BACKFILL_HOURS", 1080)
	intervalMs := envIntOrDefault("SIM_INTERVAL_MS", 0)
	seed := int64(envIntOrDefault("SIM_SEED", 0))
	hourlyTF := envIntOrDefault("HOURLY_TF_SEC", 3600)
	dailyTF := envIntOrDefault("DAILY_TF_SEC", 86400)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(assets) == 0 || hourlyTF <= 0 || dailyTF <= 0 {
		log.Error("invalid simulator config")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var sinks []sink
	if target == "sqlite" || target == "both" {
		path := envOrDefault("SQLITE_PATH", "data/forecasts.db")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Error("sqlite dir", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store, err := sqlitestore.Open(path)
		if err != nil {
			log.Error("sqlite open failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer store.Close()
		sinks = append(sinks, sink{name: "sqlite", write: store.InsertCandles, upsert: true})
	}
	if target == "redis" || target == "both" {
		db, _ := strconv.Atoi(envOrDefault("REDIS_DB", "0"))
		rdb, err := redisstore.Dial(ctx, redisstore.Config{
			Addr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
		})
		if err != nil {
			log.Error("redis connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
		sinks = append(sinks, sink{name: "redis", write: redisstore.NewCandleWriter(rdb).WriteCandles})
	}
	if len(sinks) == 0 {
		log.Error("SIM_TARGET must be redis, sqlite or both", slog.String("target", target))
		os.Exit(2)
	}

	g := newGenerator(assets, hourlyTF, dailyTF, seed)
	hour := time.Duration(hourlyTF) * time.Second
	ts := time.Now().UTC().Truncate(hour).Add(-time.Duration(backfill) * hour)

	log.Info("starting",
		slog.Any("assets", assets),
		slog.String("target", target),
		slog.Int("backfill_hours", backfill),
		slog.Int64("seed", seed))

	// ─── Backfill ────────────────────────────────────────────────────────────

	var batch []model.Candle
	for i := 0; i < backfill; i++ {
		hourly, daily := g.step(ts)
		batch = append(batch, hourly...)
		batch = append(batch, daily...)
		ts = ts.Add(hour)
	}
	if err := emit(ctx, sinks, batch, g.forming()); err != nil {
		log.Error("backfill failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("backfill complete", slog.Int("candles", len(batch)), slog.String("next_ts", ts.Format(time.RFC3339)))

	if intervalMs <= 0 {
		return
	}

	// ─── Live ────────────────────────────────────────────────────────────────

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopped", slog.String("last_ts", ts.Format(time.RFC3339)))
			return
		case <-ticker.C:
			hourly, daily := g.step(ts)
			ts = ts.Add(hour)
			if err := emit(ctx, sinks, append(hourly, daily...), g.forming()); err != nil {
				log.Warn("write failed", slog.String("error", err.Error()))
			}
		}
	}
}

// emit writes closed candles to every sink, plus the forming daily candles
// to sinks that upsert.
func emit(ctx context.Context, sinks []sink, closed, forming []model.Candle) error {
	for _, s := range sinks {
		out := closed
		if s.upsert {
			out = append(append([]model.Candle(nil), closed...), forming...)
		}
		if err := s.write(ctx, out); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
