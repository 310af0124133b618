package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

// exerciseStore checks the upsert contract shared by every driver.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.MarkDone(ctx, job.Identity{Key: "a@x.com", Row: 2}, "done"))
	require.NoError(t, s.MarkDone(ctx, job.Identity{Key: "b@x.com", Row: 3}, "done"))
	require.NoError(t, s.MarkDone(ctx, job.Identity{Key: "a@x.com", Row: 2}, "verified"))

	r, ok, err := s.Lookup(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "verified", r.Status)
	assert.Equal(t, 2, r.Row)

	_, ok, err = s.Lookup(ctx, "missing@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.Results(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a@x.com", all[0].Key)
	assert.Equal(t, "b@x.com", all[1].Key)

	done, err := Done(s).IsDone(ctx, "b@x.com")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMemoryStore(t *testing.T) {
	s, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "results.json")
	cfg := Config{Driver: "file", Path: path, CompactEvery: 2}

	s, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.MarkDone(context.Background(), job.Identity{Key: "c@x.com", Row: 4}, "done"))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.MarkDone(context.Background(), job.Identity{Key: "d"}, "done"), ErrClosed)

	s, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer s.Close()
	all, err := s.Results(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "verified", all[0].Status)
}

func TestFileStoreReplaysJournalWithoutSnapshot(t *testing.T) {
	dir := t.TempDir()
	journal := `{"key":"a","row":2,"status":"done"}` + "\n" + `not json` + "\n" + `{"key":"a","row":2,"status":"again"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r.results.journal.jsonl"), []byte(journal), 0o600))

	s, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "r.json")}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()
	r, ok, err := s.Lookup(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "again", r.Status)
}

func TestSQLiteStore(t *testing.T) {
	s, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "results.db")}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSheetStoreWritesBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.xlsx")
	writeWorkbook(t, path,
		[]any{"seq", "email", "password", "recovery"},
		[]any{1, "a@x.com", "pa", "ra"},
		[]any{2, "b@x.com", "pb", "rb"},
	)

	s, err := Open(Config{Driver: "sheet", Path: path}, logx.Nop())
	require.NoError(t, err)
	exerciseStore(t, s)
	assert.Error(t, s.MarkDone(context.Background(), job.Identity{Key: "x", Row: 1}, "done"))
	require.NoError(t, s.Close())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetCellValue("Sheet1", "E1")
	require.NoError(t, err)
	assert.Equal(t, "status", header)
	v, err := f.GetCellValue("Sheet1", "E2")
	require.NoError(t, err)
	assert.Equal(t, "verified", v)

	// Reopening picks up statuses already in the sheet.
	s, err = Open(Config{Driver: "sheet", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()
	ok, err := Done(s).IsDone(context.Background(), "b@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func writeWorkbook(t *testing.T, path string, rows ...[]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", addr, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestSheetStoreKeepsRowsAddedAfterOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.xlsx")
	writeWorkbook(t, path,
		[]any{"seq", "email", "status"},
		[]any{1, "a@x"},
	)
	s, err := Open(Config{Driver: "sheet", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()

	// The operator appends a row while the store is open.
	writeWorkbook(t, path,
		[]any{"seq", "email", "status"},
		[]any{1, "a@x"},
		[]any{2, "b@x"},
	)
	require.NoError(t, s.MarkDone(context.Background(), job.Identity{Key: "a@x", Row: 2}, "done"))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"seq", "email", "status"},
		{"1", "a@x", "done"},
		{"2", "b@x"},
	}, rows)
}

func TestSheetStoreRejectsWritesAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.xlsx")
	writeWorkbook(t, path, []any{"email"}, []any{"a@x"})
	s, err := Open(Config{Driver: "sheet", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.MarkDone(context.Background(), job.Identity{Key: "a@x", Row: 2}, "done"), ErrClosed)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("ENVPOOL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ENVPOOL_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(Config{Driver: "postgres", DSN: dsn, Table: "envpool_results_test"}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("ENVPOOL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ENVPOOL_TEST_REDIS_ADDR not set")
	}
	s, err := Open(Config{Driver: "redis", Addr: addr, KeyPrefix: "envpool-test-" + t.Name()}, logx.Nop())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mongo"}, logx.Nop())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
