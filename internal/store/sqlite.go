package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by one table per partition.
type SQLite struct {
	db   *sql.DB
	path string
}

func openSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite db: %w", err)
	}

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, path: path}, nil
}

// Pragmas are connection scoped, so they ride on the DSN and every pooled
// connection gets them.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(FULL)",
}

func sqliteDSN(path string) string {
	params := url.Values{}
	for _, pragma := range sqlitePragmas {
		params.Add("_pragma", pragma)
	}
	return path + "?" + params.Encode()
}

// Path reports the database file location.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Get(ctx context.Context, partition Partition, key string) (*Record, error) {
	if err := checkKey("get", partition, key); err != nil {
		return nil, err
	}
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM "+string(partition)+" WHERE id = ?", key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get", partition, err)
	}
	return &Record{ID: key, Body: []byte(body)}, nil
}

func (s *SQLite) Put(ctx context.Context, partition Partition, rec Record) error {
	if err := checkRecord("put", partition, rec); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO "+string(partition)+" (id, body) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET body = excluded.body",
		rec.ID, string(rec.Body),
	)
	if err != nil {
		return storageError("put", partition, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, partition Partition, key string) error {
	if err := checkKey("delete", partition, key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+string(partition)+" WHERE id = ?", key); err != nil {
		return storageError("delete", partition, err)
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context, partition Partition) (int, error) {
	if err := checkPartition("count", partition); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+string(partition)).Scan(&n); err != nil {
		return 0, storageError("count", partition, err)
	}
	return n, nil
}

func (s *SQLite) ScanOrderedBy(ctx context.Context, partition Partition, field string) ([]Record, error) {
	if err := checkField("scan", partition, field); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, body FROM "+string(partition)+" ORDER BY json_extract(body, ?), id",
		"$."+field,
	)
	if err != nil {
		return nil, storageError("scan", partition, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, storageError("scan", partition, err)
		}
		records = append(records, Record{ID: id, Body: []byte(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("scan", partition, err)
	}
	return records, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
