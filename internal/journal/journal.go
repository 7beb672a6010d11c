// Package journal keeps the local audit trail: every observed source fill,
// every placement outcome and every confirmed on-chain fill lands in one
// sqlite file for later inspection.
package journal

import (
	"context"
	"database/sql"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"

	"github.com/followbot/gofollow/internal/copytrade"
	"github.com/followbot/gofollow/internal/events"
	"github.com/followbot/gofollow/pkg/logger"
)

// Store is the sqlite-backed journal. It implements copytrade.Sink.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path and runs migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "journal: mkdir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open")
	}
	// A single connection keeps sqlite stable under concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS observed_fills (
  id TEXT PRIMARY KEY,
  tx_hash TEXT NOT NULL,
  target TEXT NOT NULL,
  role TEXT NOT NULL,
  side TEXT NOT NULL,
  token_id TEXT NOT NULL,
  shares TEXT NOT NULL,
  cash TEXT NOT NULL,
  seen_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_observed_fills_seen_at ON observed_fills(seen_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS placements (
  id TEXT PRIMARY KEY,
  source_hash TEXT NOT NULL,
  target TEXT NOT NULL,
  token_id TEXT NOT NULL,
  side TEXT NOT NULL,
  size TEXT NOT NULL,
  limit_price TEXT NOT NULL,
  implied_price TEXT NOT NULL,
  notional TEXT NOT NULL,
  status TEXT NOT NULL,
  venue_order_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_at ON placements(at DESC);`,
		`
CREATE TABLE IF NOT EXISTS confirmed_fills (
  tx_hash TEXT NOT NULL,
  log_index TEXT NOT NULL,
  block_number INTEGER NOT NULL,
  order_hash TEXT NOT NULL,
  maker TEXT NOT NULL,
  taker TEXT NOT NULL,
  maker_asset_id TEXT NOT NULL,
  taker_asset_id TEXT NOT NULL,
  maker_amount TEXT NOT NULL,
  taker_amount TEXT NOT NULL,
  fee TEXT NOT NULL,
  at TEXT NOT NULL,
  PRIMARY KEY (tx_hash, log_index)
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "journal: migrate")
		}
	}
	return nil
}

// RecordFill journals one observed source fill.
func (s *Store) RecordFill(ctx context.Context, rec copytrade.FillRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO observed_fills (id,tx_hash,target,role,side,token_id,shares,cash,seen_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, uuid.NewString(), rec.TxHash, rec.Target, rec.Role, rec.Side, rec.TokenID, rec.Shares, rec.Cash,
		rec.SeenAt.UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "journal: record fill")
}

// RecordPlacement journals one placement outcome.
func (s *Store) RecordPlacement(ctx context.Context, rec copytrade.PlacementRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO placements (id,source_hash,target,token_id,side,size,limit_price,implied_price,notional,status,venue_order_id,reason,at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
`, uuid.NewString(), rec.SourceHash, rec.Target, rec.TokenID, rec.Side, rec.Size, rec.LimitPrice,
		rec.ImpliedPrice, rec.Notional, rec.Status, rec.VenueOrderID, rec.Reason,
		rec.At.UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "journal: record placement")
}

// RecordConfirmedFill journals a settled on-chain fill. A reconnect can
// replay a log; replays hit the primary key and are ignored.
func (s *Store) RecordConfirmedFill(ctx context.Context, ev events.FillConfirmedEvent) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO confirmed_fills
(tx_hash,log_index,block_number,order_hash,maker,taker,maker_asset_id,taker_asset_id,maker_amount,taker_amount,fee,at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
`, ev.TxHash, ev.LogIndex, ev.BlockNumber, ev.OrderHash, ev.Maker, ev.Taker,
		bigString(ev.MakerAssetID), bigString(ev.TakerAssetID),
		bigString(ev.MakerAmount), bigString(ev.TakerAmount), bigString(ev.Fee),
		time.Now().UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "journal: record confirmed fill")
}

// Attach subscribes the store to confirmed-fill events. The write runs on
// its own goroutine so bus dispatch never blocks on disk.
func (s *Store) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.Event) {
		ev, ok := e.(events.FillConfirmedEvent)
		if !ok {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.RecordConfirmedFill(ctx, ev); err != nil {
				logger.Warnf("journal: confirmed fill not recorded: %v", err)
			}
		}()
	})
}

// Counts reports row totals per table.
type Counts struct {
	ObservedFills  int `json:"observed_fills"`
	Placements     int `json:"placements"`
	ConfirmedFills int `json:"confirmed_fills"`
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM observed_fills),
  (SELECT COUNT(*) FROM placements),
  (SELECT COUNT(*) FROM confirmed_fills)
`)
	if err := row.Scan(&c.ObservedFills, &c.Placements, &c.ConfirmedFills); err != nil {
		return Counts{}, errors.Wrap(err, "journal: counts")
	}
	return c, nil
}

// RecentFills returns the latest observed fills, newest first.
func (s *Store) RecentFills(ctx context.Context, limit int) ([]copytrade.FillRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT tx_hash,target,role,side,token_id,shares,cash,seen_at
FROM observed_fills ORDER BY seen_at DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "journal: recent fills")
	}
	defer rows.Close()

	var out []copytrade.FillRecord
	for rows.Next() {
		var rec copytrade.FillRecord
		var seen string
		if err := rows.Scan(&rec.TxHash, &rec.Target, &rec.Role, &rec.Side, &rec.TokenID, &rec.Shares, &rec.Cash, &seen); err != nil {
			return nil, errors.Wrap(err, "journal: scan fill")
		}
		rec.SeenAt, _ = time.Parse(time.RFC3339Nano, seen)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "journal: recent fills")
}

// RecentPlacements returns the latest placements, newest first.
func (s *Store) RecentPlacements(ctx context.Context, limit int) ([]copytrade.PlacementRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT source_hash,target,token_id,side,size,limit_price,implied_price,notional,status,venue_order_id,reason,at
FROM placements ORDER BY at DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "journal: recent placements")
	}
	defer rows.Close()

	var out []copytrade.PlacementRecord
	for rows.Next() {
		var rec copytrade.PlacementRecord
		var at string
		if err := rows.Scan(&rec.SourceHash, &rec.Target, &rec.TokenID, &rec.Side, &rec.Size,
			&rec.LimitPrice, &rec.ImpliedPrice, &rec.Notional, &rec.Status, &rec.VenueOrderID, &rec.Reason, &at); err != nil {
			return nil, errors.Wrap(err, "journal: scan placement")
		}
		rec.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "journal: recent placements")
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
