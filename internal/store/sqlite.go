package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

// SQLiteStore is the local baseline backend: whole documents in a single
// table, one row per key. It gives the no-sync variant a durable copy of the
// list without any remote; collaborative backends never touch it so local
// state cannot diverge from the remote copy of record.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}

func (ss *SQLiteStore) Get(ctx context.Context, key string) (*models.Document, Version, error) {
	var body string
	var version int64
	err := ss.db.QueryRowContext(ctx,
		"SELECT body, version FROM documents WHERE key = ?", key,
	).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to query document %s: %w", key, err)
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal document %s: %w", key, err)
	}
	return &doc, Version(strconv.FormatInt(version, 10)), nil
}

func (ss *SQLiteStore) Put(ctx context.Context, key string, doc *models.Document, ver Version) (Version, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document %s: %w", key, err)
	}

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		"SELECT version FROM documents WHERE key = ?", key,
	).Scan(&current)
	exists := !errors.Is(err, sql.ErrNoRows)
	if err != nil && exists {
		return "", fmt.Errorf("failed to query version for %s: %w", key, err)
	}
	if exists && ver != "" && ver != Version(strconv.FormatInt(current, 10)) {
		return "", ErrConflict
	}

	next := current + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (key, body, version, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, version = excluded.version, updated_at = CURRENT_TIMESTAMP`,
		key, string(raw), next)
	if err != nil {
		return "", fmt.Errorf("failed to write document %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit document %s: %w", key, err)
	}
	return Version(strconv.FormatInt(next, 10)), nil
}

func (ss *SQLiteStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := ss.db.QueryContext(ctx,
		"SELECT key FROM documents WHERE key LIKE ? || '%' ORDER BY key", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
