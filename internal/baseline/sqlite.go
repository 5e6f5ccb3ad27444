package baseline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore keeps the baseline in a SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	closeOnce sync.Once
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS baseline_entries (
		hash TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		artifact TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		accepted_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_baseline_rule ON baseline_entries(rule_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, rule_id, artifact, message, run_id, accepted_at
		FROM baseline_entries
		ORDER BY rule_id, hash
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list baseline: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var acceptedAt int64
		if err := rows.Scan(&e.Hash, &e.RuleID, &e.Artifact, &e.Message, &e.RunID, &acceptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan baseline entry: %w", err)
		}
		e.AcceptedAt = time.Unix(acceptedAt, 0).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list baseline: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Accept(ctx context.Context, entries []Entry) (int, error) {
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO baseline_entries (hash, rule_id, artifact, message, run_id, accepted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare accept statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx, e.Hash, e.RuleID, e.Artifact, e.Message, e.RunID, e.AcceptedAt.Unix())
		if err != nil {
			return 0, fmt.Errorf("failed to accept %s: %w", e.Hash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to accept %s: %w", e.Hash, err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit baseline: %w", err)
	}
	return added, nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
