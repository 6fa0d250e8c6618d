package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/ganymede/pkg/admission/budget"
)

// SQLiteSink implements budget.Sink using SQLite for persistence.
// It is suitable for single-instance deployments where spend accounting
// must survive restarts.
//
// SQLiteSink uses a write-ahead log (WAL) for better concurrent
// performance and periodic checkpointing to balance write performance
// with durability.
type SQLiteSink struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.Mutex
	closeOnce          sync.Once

	loadStmt *sql.Stmt
}

// SQLiteSinkConfig configures the SQLite sink.
type SQLiteSinkConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteSink creates a SQLite sink with default settings.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	return NewSQLiteSinkWithConfig(SQLiteSinkConfig{DBPath: dbPath})
}

// NewSQLiteSinkWithConfig creates a SQLite sink with custom configuration.
func NewSQLiteSinkWithConfig(cfg SQLiteSinkConfig) (*SQLiteSink, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	sink := &SQLiteSink{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := sink.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := sink.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go sink.checkpointLoop()

	return sink, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS spending_records (
		period_key TEXT NOT NULL,
		seq INTEGER NOT NULL,
		record TEXT NOT NULL,
		saved_at INTEGER NOT NULL,
		PRIMARY KEY (period_key, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_spending_period ON spending_records(period_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteSink) prepareStatements() error {
	var err error

	s.loadStmt, err = s.db.Prepare(`
		SELECT record FROM spending_records
		WHERE period_key = ?
		ORDER BY seq
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	return nil
}

// Save replaces the stored records for a period in a single transaction.
func (s *SQLiteSink) Save(ctx context.Context, periodKey string, records []*budget.SpendingRecord) error {
	if periodKey == "" {
		return fmt.Errorf("period key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM spending_records WHERE period_key = ?`, periodKey); err != nil {
		return fmt.Errorf("failed to clear period: %w", err)
	}

	now := time.Now().Unix()
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO spending_records (period_key, seq, record, saved_at) VALUES (?, ?, ?, ?)`,
			periodKey, i, string(data), now); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// Load retrieves the records for a period in insertion order.
// A missing period returns an empty slice and no error.
func (s *SQLiteSink) Load(ctx context.Context, periodKey string) ([]*budget.SpendingRecord, error) {
	if periodKey == "" {
		return nil, fmt.Errorf("period key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.loadStmt.QueryContext(ctx, periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load period: %w", err)
	}
	defer rows.Close()

	var records []*budget.SpendingRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rec := &budget.SpendingRecord{}
		if err := json.Unmarshal([]byte(data), rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// PrunePeriodsBefore deletes all periods with keys lexically below the
// cutoff key and returns the number of records removed. Daily period
// keys sort chronologically, so string comparison is a date comparison.
func (s *SQLiteSink) PrunePeriodsBefore(ctx context.Context, cutoffKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM spending_records WHERE period_key < ?`, cutoffKey)
	if err != nil {
		return 0, fmt.Errorf("failed to prune: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// Close releases any resources held by the sink.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteSink) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		if s.loadStmt != nil {
			s.loadStmt.Close()
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteSink) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
