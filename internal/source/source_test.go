package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	logx "envpool/pkg/logx"
)

func writeXLSX(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", addr, &row))
	}
	path := filepath.Join(t.TempDir(), "accounts.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

var accounts = [][]any{
	{"seq", "email", "password", "recovery"},
	{1, "a@x.com", "pa", "ra@x.com"},
	{2, "b@x.com", "pb", "rb@x.com"},
	{3, "c@x.com", "pc", "rc@x.com"},
}

type doneSet map[string]bool

func (d doneSet) IsDone(_ context.Context, key string) (bool, error) { return d[key], nil }

func TestXLSXLoad(t *testing.T) {
	src, err := New(Config{Path: writeXLSX(t, accounts)}, nil, logx.Nop())
	require.NoError(t, err)

	jobs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "a@x.com", jobs[0].Key)
	assert.Equal(t, 2, jobs[0].Row)
	assert.Equal(t, "pa", jobs[0].Payload["password"])
	assert.Equal(t, "rc@x.com", jobs[2].Payload["recovery"])
	assert.Equal(t, 4, jobs[2].Row)
}

func TestStartSeqAndSkipDone(t *testing.T) {
	cfg := Config{Path: writeXLSX(t, accounts), StartSeq: 2, SkipDone: true}
	src, err := New(cfg, doneSet{"c@x.com": true}, logx.Nop())
	require.NoError(t, err)

	jobs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "b@x.com", jobs[0].Key)
	assert.Equal(t, 3, jobs[0].Row)
}

func TestEmptySheet(t *testing.T) {
	src, err := New(Config{Path: writeXLSX(t, accounts[:1])}, nil, logx.Nop())
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCSVLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.csv")
	data := "seq,email,password,recovery\n1,a@x.com,pa,ra\n2,,pb,rb\n3,c@x.com,pc\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	src, err := New(Config{Path: path}, nil, logx.Nop())
	require.NoError(t, err)
	jobs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c@x.com", jobs[1].Key)
	assert.Equal(t, 4, jobs[1].Row)
	assert.Equal(t, "", jobs[1].Payload["recovery"])
}

func TestMissingKeyColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(path, []byte("seq,user\n1,a\n"), 0o600))
	src, err := New(Config{Path: path}, nil, logx.Nop())
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoKeyColumn)
}

func TestStartSeqNeedsSeqColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(path, []byte("email,password\na@x.com,pa\n"), 0o600))

	src, err := New(Config{Path: path, StartSeq: 3}, nil, logx.Nop())
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSeqColumn)

	// Without a resume point the column is optional.
	src, err = New(Config{Path: path}, nil, logx.Nop())
	require.NoError(t, err)
	jobs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestUnknownFormat(t *testing.T) {
	_, err := New(Config{Path: "accounts.txt"}, nil, logx.Nop())
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
