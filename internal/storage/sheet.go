package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

// sheetStore writes statuses into a column of the source workbook, at the
// row the job was loaded from. The column is added when missing. The
// workbook is opened for each write so edits made between batches survive.
type sheetStore struct {
	log          logx.Logger
	path         string
	sheet        string
	statusHeader string

	mu      sync.Mutex
	closed  bool
	results map[string]Result
}

func openSheet(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sheet driver")
	}
	keyHeader := strings.ToLower(strings.TrimSpace(cfg.KeyColumn))
	if keyHeader == "" {
		keyHeader = "email"
	}
	statusHeader := strings.ToLower(strings.TrimSpace(cfg.StatusColumn))
	if statusHeader == "" {
		statusHeader = "status"
	}

	s := &sheetStore{log: log, path: path, sheet: cfg.Sheet, statusHeader: statusHeader, results: map[string]Result{}}
	err := s.update(func(f *excelize.File, statusCol int) error {
		rows, err := f.GetRows(s.sheet)
		if err != nil {
			return fmt.Errorf("sheet: read %q: %w", s.sheet, err)
		}
		keyIdx := -1
		if len(rows) > 0 {
			for i, h := range rows[0] {
				if strings.ToLower(strings.TrimSpace(h)) == keyHeader {
					keyIdx = i
					break
				}
			}
		}
		if keyIdx < 0 {
			return fmt.Errorf("sheet: key column %q not found", keyHeader)
		}
		statusIdx := statusCol - 1
		for i, row := range rows {
			if i == 0 || statusIdx >= len(row) || keyIdx >= len(row) {
				continue
			}
			key := strings.TrimSpace(row[keyIdx])
			status := strings.TrimSpace(row[statusIdx])
			if key != "" && status != "" {
				s.results[key] = Result{Key: key, Row: i + 1, Status: status}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug("sheet store opened", logx.String("path", path), logx.String("sheet", s.sheet), logx.Int("results", len(s.results)))
	return s, nil
}

// update opens the workbook, resolves the status column (appending its
// header when missing), runs fn and saves. Callers hold s.mu or own s.
func (s *sheetStore) update(fn func(f *excelize.File, statusCol int) error) error {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("sheet: open %s: %w", s.path, err)
	}
	defer f.Close()

	if s.sheet == "" {
		s.sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	header, err := headerRow(f, s.sheet)
	if err != nil {
		return err
	}
	statusCol := 0
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == s.statusHeader {
			statusCol = i + 1 // excelize columns are 1-based
			break
		}
	}
	if statusCol == 0 {
		statusCol = len(header) + 1
		if err := setCell(f, s.sheet, statusCol, 1, s.statusHeader); err != nil {
			return err
		}
	}
	if err := fn(f, statusCol); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("sheet: save: %w", err)
	}
	return nil
}

func headerRow(f *excelize.File, sheet string) ([]string, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet: read %q: %w", sheet, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Error()
	}
	return rows.Columns()
}

func setCell(f *excelize.File, sheet string, col, row int, v string) error {
	addr, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, addr, v)
}

func (s *sheetStore) MarkDone(_ context.Context, id job.Identity, status string) error {
	if id.Row < 2 {
		return fmt.Errorf("sheet: invalid row %d for %s", id.Row, id.Key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := s.update(func(f *excelize.File, statusCol int) error {
		return setCell(f, s.sheet, statusCol, id.Row, status)
	})
	if err != nil {
		return err
	}
	key := strings.TrimSpace(id.Key)
	s.results[key] = Result{Key: key, Row: id.Row, Status: status, At: time.Now()}
	return nil
}

func (s *sheetStore) Lookup(_ context.Context, key string) (Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[strings.TrimSpace(key)]
	return r, ok, nil
}

func (s *sheetStore) Results(context.Context) ([]Result, error) {
	s.mu.Lock()
	out := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortResults(out)
	return out, nil
}

func (s *sheetStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
