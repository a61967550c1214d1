package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the default Store, a single database file.
type SQLite struct {
	readDB    *sql.DB
	writeDB   *sql.DB
	retention time.Duration
	now       func() time.Time
}

func Open(dbPath string, retention time.Duration) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	c := &SQLite{readDB: readDB, writeDB: writeDB, retention: retention, now: time.Now}
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLite) init() error {
	_, err := c.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			key        TEXT PRIMARY KEY,
			signature  TEXT NOT NULL,
			records    BLOB NOT NULL,
			n_records  INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			ttl        INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return c.migrate()
}

// migrate adds the ttl column to databases created before it existed.
func (c *SQLite) migrate() error {
	var n int
	err := c.writeDB.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('entries') WHERE name = 'ttl'",
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspecting schema: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := c.writeDB.Exec("ALTER TABLE entries ADD COLUMN ttl INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

func (c *SQLite) Close() error {
	var errs []error
	if c.readDB != nil {
		errs = append(errs, c.readDB.Close())
	}
	if c.writeDB != nil {
		errs = append(errs, c.writeDB.Close())
	}
	return errors.Join(errs...)
}

func (c *SQLite) Get(ctx context.Context, sig Signature, ttl time.Duration) ([]Record, bool, error) {
	var (
		blob     []byte
		created  int64
		writeTTL int64
	)
	err := c.readDB.QueryRowContext(ctx,
		"SELECT records, created_at, ttl FROM entries WHERE key = ?", sig.Key(),
	).Scan(&blob, &created, &writeTTL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading entry: %w", err)
	}

	if !fresh(time.Unix(0, created), c.now(), time.Duration(writeTTL), ttl) {
		return nil, false, nil
	}

	var records []Record
	if err := json.Unmarshal(blob, &records); err != nil {
		// A damaged payload is a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return records, true, nil
}

// Set replaces the entry for sig in one statement, so readers see either the
// previous entry or the new one. ttl caps the entry's freshness for every
// later read.
func (c *SQLite) Set(ctx context.Context, sig Signature, records []Record, ttl time.Duration) error {
	if records == nil {
		records = []Record{}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	_, err = c.writeDB.ExecContext(ctx, `
		INSERT INTO entries (key, signature, records, n_records, created_at, ttl)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			signature = excluded.signature,
			records = excluded.records,
			n_records = excluded.n_records,
			created_at = excluded.created_at,
			ttl = excluded.ttl
	`, sig.Key(), sig.String(), blob, len(records), c.now().UnixNano(), int64(ttl))
	if err != nil {
		return fmt.Errorf("writing entry: %w", err)
	}
	return nil
}

// Prune deletes entries older than the retention ceiling.
func (c *SQLite) Prune(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention).UnixNano()
	res, err := c.writeDB.ExecContext(ctx, "DELETE FROM entries WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if _, err := c.writeDB.ExecContext(ctx, "VACUUM"); err != nil {
			return n, fmt.Errorf("reclaiming space: %w", err)
		}
	}
	return n, nil
}

func (c *SQLite) Clear(ctx context.Context) (int64, error) {
	res, err := c.writeDB.ExecContext(ctx, "DELETE FROM entries")
	if err != nil {
		return 0, fmt.Errorf("clearing entries: %w", err)
	}
	return res.RowsAffected()
}

func (c *SQLite) Stats(ctx context.Context) (Stats, error) {
	var (
		st             Stats
		oldest, newest sql.NullInt64
	)
	err := c.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(n_records), 0), MIN(created_at), MAX(created_at) FROM entries",
	).Scan(&st.Entries, &st.Records, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	if oldest.Valid {
		st.Oldest = time.Unix(0, oldest.Int64)
	}
	if newest.Valid {
		st.Newest = time.Unix(0, newest.Int64)
	}
	return st, nil
}
