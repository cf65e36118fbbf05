package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/casekit/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	type       TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (type, id)
);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
`

// SQLite stores documents in a single entities table. Equality queries use
// the JSON1 json_extract function.
type SQLite struct {
	conn *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Get(ctx context.Context, typ, id string) (json.RawMessage, error) {
	const op = "store: get"
	if err := validateKey(op, typ, id); err != nil {
		return nil, err
	}
	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM entities WHERE type = ? AND id = ?`, typ, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, typ+" "+id)
	}
	if err != nil {
		return nil, apperr.Database(op, err)
	}
	return json.RawMessage(data), nil
}

func (s *SQLite) Put(ctx context.Context, typ, id string, doc json.RawMessage) error {
	const op = "store: put"
	if err := validateKey(op, typ, id); err != nil {
		return err
	}
	if !json.Valid(doc) {
		return apperr.Validation(op, "document for %s %s is not valid JSON", typ, id)
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO entities (type, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, typ, id, string(doc), time.Now().UTC())
	return apperr.Database(op, err)
}

func (s *SQLite) DeleteOne(ctx context.Context, typ, id string) error {
	const op = "store: delete"
	if err := validateKey(op, typ, id); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx, `DELETE FROM entities WHERE type = ? AND id = ?`, typ, id)
	return apperr.Database(op, err)
}

func (s *SQLite) QueryByEquality(ctx context.Context, typ, field string, value any) ([]json.RawMessage, error) {
	const op = "store: query"
	if err := validateField(op, field); err != nil {
		return nil, err
	}
	if b, ok := value.(bool); ok {
		// json_extract yields 1/0 for JSON booleans.
		value = 0
		if b {
			value = 1
		}
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT data FROM entities
		WHERE type = ? AND json_extract(data, ?) = ?
		ORDER BY id
	`, typ, "$."+field, value)
	if err != nil {
		return nil, apperr.Database(op, err)
	}
	return scanDocs(op, rows)
}

func (s *SQLite) BulkDelete(ctx context.Context, typ string, ids []string) (int, error) {
	const op = "store: bulk delete"
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Database(op, err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, typ)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE type = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, apperr.Database(op, err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, apperr.Database(op, err)
	}
	return int(n), nil
}

func (s *SQLite) All(ctx context.Context, typ string) ([]json.RawMessage, error) {
	const op = "store: all"
	rows, err := s.conn.QueryContext(ctx, `SELECT data FROM entities WHERE type = ? ORDER BY id`, typ)
	if err != nil {
		return nil, apperr.Database(op, err)
	}
	return scanDocs(op, rows)
}

func scanDocs(op string, rows *sql.Rows) ([]json.RawMessage, error) {
	defer rows.Close()
	var out []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperr.Database(op, err)
		}
		out = append(out, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(op, err)
	}
	return out, nil
}
