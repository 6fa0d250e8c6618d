package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/ganymede/pkg/detect"
)

// SQLiteStore persists assessments in SQLite so audit evidence survives
// restarts. The evidence hash is stored alongside the findings, which
// lets an auditor verify records have not been altered.
type SQLiteStore struct {
	db *sql.DB

	saveStmt *sql.Stmt
	getStmt  *sql.Stmt
}

// SQLiteStoreConfig configures the assessment store.
type SQLiteStoreConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int
}

// NewSQLiteStore creates an assessment store with default settings.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{Path: path})
}

// NewSQLiteStoreWithConfig creates an assessment store with custom
// configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLiteStore{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		request_id TEXT PRIMARY KEY,
		risk_score REAL NOT NULL,
		risk_level TEXT NOT NULL,
		findings TEXT NOT NULL,
		evidence_hash TEXT NOT NULL,
		assessed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_level ON assessments(risk_level);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO assessments (request_id, risk_score, risk_level, findings, evidence_hash, assessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO UPDATE SET
			risk_score = excluded.risk_score,
			risk_level = excluded.risk_level,
			findings = excluded.findings,
			evidence_hash = excluded.evidence_hash,
			assessed_at = excluded.assessed_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`
		SELECT request_id, risk_score, risk_level, findings, evidence_hash, assessed_at
		FROM assessments
		WHERE request_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	return nil
}

// SaveAssessment persists one assessment, replacing any previous one for
// the same request ID.
func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *detect.Assessment) error {
	if a == nil {
		return fmt.Errorf("assessment cannot be nil")
	}
	if a.RequestID == "" {
		return fmt.Errorf("assessment request ID cannot be empty")
	}

	findings, err := json.Marshal(a.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	_, err = s.saveStmt.ExecContext(ctx,
		a.RequestID,
		a.RiskScore,
		string(a.RiskLevel),
		string(findings),
		a.EvidenceHash,
		a.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}

	return nil
}

// GetAssessment returns the assessment for a request ID, or nil when
// none exists.
func (s *SQLiteStore) GetAssessment(ctx context.Context, requestID string) (*detect.Assessment, error) {
	var (
		a         detect.Assessment
		level     string
		findings  string
		timestamp int64
	)

	err := s.getStmt.QueryRowContext(ctx, requestID).Scan(
		&a.RequestID,
		&a.RiskScore,
		&level,
		&findings,
		&a.EvidenceHash,
		&timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment: %w", err)
	}

	a.RiskLevel = detect.RiskLevel(level)
	a.Timestamp = time.Unix(timestamp, 0)
	if err := json.Unmarshal([]byte(findings), &a.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}

	return &a, nil
}

// CountByLevel returns the number of stored assessments at a level.
func (s *SQLiteStore) CountByLevel(ctx context.Context, level detect.RiskLevel) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assessments WHERE risk_level = ?`, string(level)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return count, nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s.saveStmt != nil {
		s.saveStmt.Close()
	}
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	return s.db.Close()
}
