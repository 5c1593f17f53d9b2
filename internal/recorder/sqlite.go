package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the farm writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS operations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			account    TEXT NOT NULL,
			amount     TEXT NOT NULL,
			yield      TEXT NOT NULL,
			ok         INTEGER NOT NULL,
			error      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_account ON operations(account, id)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_ts ON operations(timestamp)`,

		`CREATE TABLE IF NOT EXISTS pool_snapshots (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp       INTEGER NOT NULL,
			reward_pool     TEXT NOT NULL,
			farm_collateral TEXT NOT NULL,
			total_staked    TEXT NOT NULL,
			total_pending   TEXT NOT NULL,
			stakers         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pool_ts ON pool_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordOperation(evt *model.OperationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO operations
		(event_id, timestamp, kind, account, amount, yield, ok, error)
		VALUES (?,?,?,?,?,?,?,?)`,
		evt.ID, unixOrNow(evt.At), string(evt.Kind), string(evt.Account),
		evt.Amount.String(), evt.Yield.String(), evt.OK, evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordPoolSnapshot(stats *model.PoolStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO pool_snapshots
		(timestamp, reward_pool, farm_collateral, total_staked, total_pending, stakers)
		VALUES (?,?,?,?,?,?)`,
		unixOrNow(stats.At), stats.RewardPool.String(), stats.FarmCollateral.String(),
		stats.TotalStaked.String(), stats.TotalPending.String(), stats.Stakers,
	)
	return err
}

func (r *SQLiteRecorder) RecentOperations(account model.Address, limit int) ([]model.OperationEvent, error) {
	rows, err := r.db.Query(`SELECT event_id, timestamp, kind, account, amount, yield, ok, error
		FROM operations WHERE account = ? ORDER BY id DESC LIMIT ?`,
		string(account), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var out []model.OperationEvent
	for rows.Next() {
		var (
			evt        model.OperationEvent
			ts         int64
			kind, acct string
			amt, yield string
			errText    sql.NullString
		)
		if err := rows.Scan(&evt.ID, &ts, &kind, &acct, &amt, &yield, &evt.OK, &errText); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		if evt.Amount, err = amount.Parse(amt); err != nil {
			return nil, fmt.Errorf("operation %s amount: %w", evt.ID, err)
		}
		if evt.Yield, err = amount.Parse(yield); err != nil {
			return nil, fmt.Errorf("operation %s yield: %w", evt.ID, err)
		}
		evt.Kind = model.OperationKind(kind)
		evt.Account = model.Address(acct)
		evt.Error = errText.String
		evt.At = time.Unix(ts, 0)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
