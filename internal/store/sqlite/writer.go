// Package sqlite is the embedded storage backend: a KV table for the ledger,
// a forecast journal and a candles table that can serve as the market source
// when Redis is not deployed.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"forecast-engine/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	defaultQueueSize  = 1024
)

// Store is a single-connection SQLite handle in WAL mode.
type Store struct {
	db    *sql.DB
	queue chan model.Forecast
	log   *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; reads share the same connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := slog.Default().With(slog.String("component", "sqlite"))
	log.Info("database opened", slog.String("path", path))
	return &Store{
		db:    db,
		queue: make(chan model.Forecast, defaultQueueSize),
		log:   log,
	}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT    PRIMARY KEY,
			value      BLOB    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS forecasts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			asset_id     TEXT    NOT NULL,
			computed_at  INTEGER NOT NULL,
			observed     REAL    NOT NULL,
			short_price  REAL    NOT NULL,
			long_price   REAL    NOT NULL,
			sentiment    TEXT    NOT NULL,
			ema_signal   REAL,
			rsi          REAL,
			macd_hist    REAL,
			percent_b    REAL,
			stoch_k      REAL,
			atr_pct      REAL,
			mean_rev     REAL,
			data         TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_forecasts_asset_ts ON forecasts (asset_id, computed_at);

		CREATE TABLE IF NOT EXISTS candles (
			asset_id TEXT    NOT NULL,
			tf       INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL,
			PRIMARY KEY (asset_id, tf, ts)
		);
	`)
	return err
}

// Set upserts a value in the kv table. Store satisfies model.KVStore.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// RecordForecast appends one forecast to the journal.
func (s *Store) RecordForecast(ctx context.Context, f model.Forecast) error {
	return s.insertBatch(ctx, []model.Forecast{f})
}

// Name identifies the journal as a forecast sink.
func (s *Store) Name() string { return "sqlite-journal" }

// Consume queues a forecast for the batching loop started by Run. When the
// queue is full the forecast is dropped and an error returned.
func (s *Store) Consume(ctx context.Context, f model.Forecast) error {
	select {
	case s.queue <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("sqlite journal queue full, dropped forecast for %s", f.AssetID)
	}
}

// Run drains queued forecasts in batched transactions. Flushes every
// defaultBatchSize forecasts OR every defaultFlushDelay, whichever first.
// Blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	batch := make([]model.Forecast, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// The run context may already be cancelled on the final flush.
		if err := s.insertBatch(context.Background(), batch); err != nil {
			s.log.Error("journal batch insert failed", slog.Int("count", len(batch)), slog.String("error", err.Error()))
		} else {
			s.log.Debug("journal batch committed", slog.Int("count", len(batch)), slog.Duration("took", time.Since(start)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case f := <-s.queue:
					batch = append(batch, f)
				default:
					flush()
					return
				}
			}
		case f := <-s.queue:
			batch = append(batch, f)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts forecasts in a single transaction.
func (s *Store) insertBatch(ctx context.Context, forecasts []model.Forecast) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecasts (asset_id, computed_at, observed, short_price, long_price, sentiment,
			ema_signal, rsi, macd_hist, percent_b, stoch_k, atr_pct, mean_rev, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range forecasts {
		f := &forecasts[i]
		flat := f.Flat()
		_, err := stmt.ExecContext(ctx,
			flat.AssetID, flat.ComputedAt.UnixMilli(), flat.ObservedPrice, flat.ShortHorizonPrice, flat.LongHorizonPrice,
			string(flat.Sentiment), flat.EMASignal, flat.RSI, flat.MACDHistogram, flat.PercentB, flat.StochK,
			flat.ATRPct, flat.MeanReversion, string(f.JSON()),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert forecast %s: %w", f.AssetID, err)
		}
	}
	return tx.Commit()
}

// InsertCandles upserts candles in a single transaction.
func (s *Store) InsertCandles(ctx context.Context, candles []model.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (asset_id, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.AssetID, c.TF, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle %s: %w", c.StreamKey(), err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
