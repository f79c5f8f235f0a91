package status

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS delivery_status (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	payload    TEXT    NOT NULL,
	updated_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// SQLiteStore keeps the record in a single-row SQLite table so a diagnostics
// tool can read it while the agent is stopped.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the status database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("status schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, status domain.DeliveryStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO delivery_status (id, payload) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload,
		     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		string(payload),
	)
	return err
}

// Load implements Store. A database without a record yields the zero status.
func (s *SQLiteStore) Load(ctx context.Context) (domain.DeliveryStatus, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM delivery_status WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeliveryStatus{}, nil
	}
	if err != nil {
		return domain.DeliveryStatus{}, err
	}
	var status domain.DeliveryStatus
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		return domain.DeliveryStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
