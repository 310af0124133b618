package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type postgresStore struct {
	pool  *pgxpool.Pool
	table string
	log   logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	table := cfg.Table
	if table == "" {
		table = "envpool_results"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("storage.table %q is not a plain identifier", table)
	}

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	_, err = pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  key        TEXT PRIMARY KEY,
  row_num    INTEGER NOT NULL,
  status     TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("postgres store opened", logx.String("table", table))
	return &postgresStore{pool: pool, table: table, log: log}, nil
}

func (s *postgresStore) MarkDone(ctx context.Context, id job.Identity, status string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (key, row_num, status, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE SET row_num = EXCLUDED.row_num, status = EXCLUDED.status, updated_at = now()`, s.table),
		strings.TrimSpace(id.Key), id.Row, status)
	return err
}

func (s *postgresStore) Lookup(ctx context.Context, key string) (Result, bool, error) {
	var r Result
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT key, row_num, status, updated_at FROM %s WHERE key = $1`, s.table), strings.TrimSpace(key)).
		Scan(&r.Key, &r.Row, &r.Status, &r.At)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	return r, true, nil
}

func (s *postgresStore) Results(ctx context.Context) ([]Result, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT key, row_num, status, updated_at FROM %s ORDER BY row_num, key`, s.table))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		err := row.Scan(&r.Key, &r.Row, &r.Status, &r.At)
		return r, err
	})
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
