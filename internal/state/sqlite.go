package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/leapstack-labs/themis/pkg/health"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// DefaultLockTimeout bounds how long a writer waits for the registry file lock.
const DefaultLockTimeout = 5 * time.Second

const lockTimeoutMsg = "could not acquire registry lock within the timeout\nHint: another themis process may be loading rules; retry shortly"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db          *sql.DB
	path        string
	lockPath    string
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewSQLiteStore creates a new SQLite registry store instance.
// If logger is nil, a discard logger is used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{
		lockTimeout: DefaultLockTimeout,
		logger:      logger,
	}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database; in-memory stores take no file lock.
func (s *SQLiteStore) Open(path string) error {
	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
		s.lockPath = path + ".lock"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened rule registry", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema brings the database schema up to date.
func (s *SQLiteStore) InitSchema() error {
	if err := s.Migrate(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SetLockTimeout overrides DefaultLockTimeout.
func (s *SQLiteStore) SetLockTimeout(d time.Duration) {
	s.lockTimeout = d
}

// =============================================================================
// Rule operations
// =============================================================================

// UpsertRules inserts every rule whose (category, rule_id) is not yet stored.
// Writes are serialized across processes with a file lock next to the database.
func (s *SQLiteStore) UpsertRules(ctx context.Context, rules []health.RuleInfo) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	if len(rules) == 0 {
		return 0, nil
	}

	unlock, err := s.acquireExclusive(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rules (category, rule_id, family, description, weight, max_score, thresholds, source, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category, rule_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	inserted := 0
	for _, r := range rules {
		thresholds, err := encodeThresholds(r.Thresholds)
		if err != nil {
			return 0, fmt.Errorf("rule %s/%s: %w", r.Category, r.ID, err)
		}
		res, err := stmt.ExecContext(ctx,
			string(r.Category), r.ID, string(r.Family), r.Description,
			r.Weight, r.MaxScore, thresholds, sourceOrBuiltin(r.Source), now)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert rule %s/%s: %w", r.Category, r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rules: %w", err)
	}

	s.logger.Debug("upserted rules",
		slog.Int("offered", len(rules)),
		slog.Int("inserted", inserted))
	return inserted, nil
}

// ListRules returns registered rules ordered by category and id.
func (s *SQLiteStore) ListRules(ctx context.Context, category health.Category) ([]RuleRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT category, rule_id, family, description, weight, max_score, thresholds, source, registered_at FROM rules`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY category, rule_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RuleRecord
	for rows.Next() {
		var (
			rec        RuleRecord
			cat, fam   string
			thresholds string
			registered string
		)
		if err := rows.Scan(&cat, &rec.ID, &fam, &rec.Description, &rec.Weight, &rec.MaxScore,
			&thresholds, &rec.Source, &registered); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rec.Category = health.Category(cat)
		rec.Family = health.Family(fam)
		if rec.Thresholds, err = decodeThresholds(thresholds); err != nil {
			return nil, fmt.Errorf("rule %s/%s: %w", cat, rec.ID, err)
		}
		if rec.RegisteredAt, err = time.Parse(time.RFC3339Nano, registered); err != nil {
			return nil, fmt.Errorf("rule %s/%s: bad registered_at %q: %w", cat, rec.ID, registered, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return out, nil
}

// CountRules returns the number of registered rules.
func (s *SQLiteStore) CountRules(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return n, nil
}

// =============================================================================
// Helpers
// =============================================================================

// acquireExclusive takes the cross-process registry lock. In-memory stores are
// private to the process and skip it.
func (s *SQLiteStore) acquireExclusive(ctx context.Context) (unlock func(), err error) {
	if s.lockPath == "" {
		return func() {}, nil
	}

	fl := flock.New(s.lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)

	locked, err := fl.TryLockContext(lockCtx, 50*time.Millisecond)
	if !locked || err != nil {
		cancel()
		return nil, fmt.Errorf("%s", lockTimeoutMsg)
	}

	return func() {
		_ = fl.Unlock()
		cancel()
	}, nil
}

func encodeThresholds(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode thresholds: %w", err)
	}
	return string(b), nil
}

func decodeThresholds(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode thresholds: %w", err)
	}
	return m, nil
}

func sourceOrBuiltin(source string) string {
	if source == "" {
		return health.SourceBuiltin
	}
	return source
}
