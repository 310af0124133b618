package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

//go:embed migrations.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; workers serialize on the connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) MarkDone(ctx context.Context, id job.Identity, status string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO results(key, row_num, status, updated_at) VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET row_num = excluded.row_num, status = excluded.status, updated_at = excluded.updated_at`,
		strings.TrimSpace(id.Key), id.Row, status, time.Now().UnixMilli())
	return err
}

func (s *sqliteStore) Lookup(ctx context.Context, key string) (Result, bool, error) {
	var r Result
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT key, row_num, status, updated_at FROM results WHERE key = ?`, strings.TrimSpace(key)).
		Scan(&r.Key, &r.Row, &r.Status, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	r.At = time.UnixMilli(ms)
	return r, true, nil
}

func (s *sqliteStore) Results(ctx context.Context) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, row_num, status, updated_at FROM results ORDER BY row_num, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		var r Result
		var ms int64
		if err := rows.Scan(&r.Key, &r.Row, &r.Status, &ms); err != nil {
			return nil, err
		}
		r.At = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
