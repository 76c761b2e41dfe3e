// cmd/backtest walks stored hourly candles from SQLite through the fusion
// engine and a simulated-clock ledger, then prints forecast accuracy.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/forecasts.db --assets=BTC,ETH --short=1h --long=24h
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"forecast-engine/config"
	"forecast-engine/internal/logger"
	"forecast-engine/internal/marketdata/replay"
	"forecast-engine/internal/model"
	fsignal "forecast-engine/internal/signal"
	sqlitestore "forecast-engine/internal/store/sqlite"
)

func main() {
	def := replay.DefaultConfig()

	dbPath := flag.String("db", "data/forecasts.db", "Path to SQLite database")
	assetsStr := flag.String("assets", "BTC,ETH", "Comma-separated assets to walk")
	weights := flag.String("weights", "", "YAML fusion weights file (default: built-in weights)")
	hourlyTF := flag.Int("hourly-tf", 3600, "Hourly candle timeframe in seconds")
	dailyTF := flag.Int("daily-tf", def.DailyTF, "Daily bucket in seconds for resampling")
	hourlyPoints := flag.Int("hourly-points", def.HourlyPoints, "Hourly window per forecast")
	dailyPoints := flag.Int("daily-points", def.DailyPoints, "Daily window per forecast")
	warmup := flag.Int("warmup", def.Warmup, "Hourly candles before the first forecast")
	limit := flag.Int("limit", 5000, "Newest hourly candles loaded per asset")
	short := flag.Duration("short", def.Ledger.ShortHorizon, "Short forecast horizon")
	long := flag.Duration("long", def.Ledger.LongHorizon, "Long forecast horizon")
	spacing := flag.Duration("spacing", def.Ledger.MinSpacing, "Minimum spacing between recorded forecasts per asset")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*level)); err != nil {
		fmt.Fprintf(os.Stderr, "[backtest] %v\n", err)
		os.Exit(2)
	}
	log := logger.Init("backtest", lvl)

	assets := config.ParseList(*assetsStr)
	if len(assets) == 0 {
		log.Error("no assets specified")
		os.Exit(2)
	}
	sigCfg, err := config.LoadWeights(*weights)
	if err != nil {
		log.Error("weights", slog.String("error", err.Error()))
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

	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		log.Error("sqlite open failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	var candles []model.Candle
	for _, asset := range assets {
		cs, err := store.Candles(ctx, *hourlyTF, asset, *limit)
		if err != nil {
			log.Error("load candles", slog.String("asset", asset), slog.String("error", err.Error()))
			os.Exit(1)
		}
		log.Info("candles loaded", slog.String("asset", asset), slog.Int("count", len(cs)))
		candles = append(candles, cs...)
	}

	cfg := def
	cfg.DailyTF = *dailyTF
	cfg.HourlyPoints = *hourlyPoints
	cfg.DailyPoints = *dailyPoints
	cfg.Warmup = *warmup
	cfg.Ledger.ShortHorizon = *short
	cfg.Ledger.LongHorizon = *long
	cfg.Ledger.MinSpacing = *spacing

	start := time.Now()
	rep, err := replay.New(fsignal.NewEngine(sigCfg), cfg, log).Run(ctx, candles)
	if err != nil {
		log.Error("backtest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Print summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles walked:    %-16d ║\n", rep.Candles)
	fmt.Printf("║  Forecasts:         %-16d ║\n", rep.Forecasts)
	fmt.Printf("║  Recorded:          %-16d ║\n", rep.Recorded)
	fmt.Printf("║  Horizons resolved: %-16d ║\n", rep.Resolved)
	fmt.Printf("║  Sentiment flips:   %-16d ║\n", rep.Flips)
	fmt.Printf("║  Short hit-rate:    %-16s ║\n", pct(rep.Overall.Short.HitRate))
	fmt.Printf("║  Short mean error:  %-16s ║\n", pct(rep.Overall.Short.MeanPctError))
	fmt.Printf("║  Long hit-rate:     %-16s ║\n", pct(rep.Overall.Long.HitRate))
	fmt.Printf("║  Long mean error:   %-16s ║\n", pct(rep.Overall.Long.MeanPctError))
	fmt.Printf("║  Elapsed:           %-16s ║\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")

	ids := make([]string, 0, len(rep.PerAsset))
	for id := range rep.PerAsset {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := rep.PerAsset[id]
		fmt.Printf("  %-8s short %s (%d/%d)  long %s (%d/%d)\n", id,
			pct(s.Short.HitRate), s.Short.Resolved, s.Short.Count,
			pct(s.Long.HitRate), s.Long.Resolved, s.Long.Count)
	}
	if !rep.From.IsZero() {
		fmt.Printf("  range %s .. %s\n", rep.From.Format(time.RFC3339), rep.To.Format(time.RFC3339))
	}
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v)
}
