// Package store persists candidates, pool entries, the shuffle verdict
// cache, worker claims, and the evaluation event log to SQLite.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/poorman/alphafunnel/internal/logger"
)

var log = logger.Named("store")

// Store aggregates the typed sub-stores over one *sql.DB, mirroring the
// central-accessor pattern used across this codebase's other stores.
type Store struct {
	db *sql.DB

	candidates *CandidateStore
	pool       *PoolStore
	verdicts   *VerdictStore
	claims     *ClaimStore
	events     *EventStore
	coins      *CoinStore
}

// Open opens (or creates) the SQLite database at dsn and ensures every
// table exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers across connections

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	s.candidates = &CandidateStore{db: db}
	s.pool = &PoolStore{db: db}
	s.verdicts = &VerdictStore{db: db}
	s.claims = &ClaimStore{db: db}
	s.events = &EventStore{db: db}
	s.coins = &CoinStore{db: db}

	log.Infof("opened store at %s", dsn)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Candidates returns the candidate row accessor.
func (s *Store) Candidates() *CandidateStore { return s.candidates }

// Pool returns the pool_entries accessor (a durable mirror of the
// in-memory pool manager, for crash-recoverable inspection).
func (s *Store) Pool() *PoolStore { return s.pool }

// Verdicts returns the shuffle verdict cache accessor.
func (s *Store) Verdicts() *VerdictStore { return s.verdicts }

// Claims returns the worker claim accessor.
func (s *Store) Claims() *ClaimStore { return s.claims }

// Events returns the append-only evaluation event log accessor.
func (s *Store) Events() *EventStore { return s.events }

// Coins returns the coin catalog accessor.
func (s *Store) Coins() *CoinStore { return s.coins }

func (s *Store) initTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candidates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			code_blob TEXT NOT NULL,
			code_fingerprint TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			source_class TEXT NOT NULL,
			pattern_meta TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'generated',
			sl_pct REAL DEFAULT 0,
			tp_pct REAL DEFAULT 0,
			leverage REAL DEFAULT 0,
			exit_bars INTEGER DEFAULT 0,
			score_backtest REAL DEFAULT 0,
			last_evaluated_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_fingerprint ON candidates(code_fingerprint)`,
		`CREATE TRIGGER IF NOT EXISTS update_candidates_updated_at
			AFTER UPDATE ON candidates
			BEGIN
				UPDATE candidates SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
			END`,

		`CREATE TABLE IF NOT EXISTS pool_entries (
			candidate_id TEXT PRIMARY KEY,
			score REAL NOT NULL,
			last_evaluated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pool_entries_score ON pool_entries(score DESC)`,

		`CREATE TABLE IF NOT EXISTS verdict_cache (
			code_fingerprint TEXT PRIMARY KEY,
			passed BOOLEAN NOT NULL,
			computed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS claims (
			candidate_id TEXT PRIMARY KEY,
			worker_id TEXT NOT NULL,
			claimed_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS evaluation_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			candidate_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluation_events_candidate ON evaluation_events(candidate_id)`,

		`CREATE TABLE IF NOT EXISTS coins (
			symbol TEXT PRIMARY KEY,
			max_leverage REAL NOT NULL,
			min_notional REAL NOT NULL,
			tradable BOOLEAN NOT NULL,
			volume_24h REAL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coins_volume ON coins(volume_24h DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}
