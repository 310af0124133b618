// Package source loads the batch of jobs from a spreadsheet or CSV file.
//
// Rows follow the account layout: seq, email, password, recovery, with a
// header row first. The email is the job key, the 1-based sheet row is the
// write-back token, and every header/cell pair lands in the payload.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

var (
	ErrEmpty         = errors.New("source: account list is empty")
	ErrUnknownFormat = errors.New("source: unknown format")
	ErrNoKeyColumn   = errors.New("source: key column not found in header")
	ErrNoSeqColumn   = errors.New("source: sequence column not found in header")
)

type Config struct {
	Path   string
	Format string // xlsx or csv; inferred from the extension when empty
	Sheet  string // xlsx only; first sheet when empty

	KeyColumn string // header of the key column, default "email"
	SeqColumn string // header of the sequence column, default "seq"
	// StartSeq skips rows whose sequence number is lower.
	StartSeq int
	// SkipDone drops rows whose key the sink already recorded.
	SkipDone bool
}

type Source interface {
	Load(ctx context.Context) ([]job.Job, error)
}

// Done reports whether a key already has a terminal status.
type Done interface {
	IsDone(ctx context.Context, key string) (bool, error)
}

func New(cfg Config, done Done, log logx.Logger) (Source, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("source: path is required")
	}
	if cfg.KeyColumn == "" {
		cfg.KeyColumn = "email"
	}
	if cfg.SeqColumn == "" {
		cfg.SeqColumn = "seq"
	}
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(cfg.Path)), ".")
	}
	var rr rowReader
	switch format {
	case "xlsx", "xlsm":
		rr = xlsxRows{path: cfg.Path, sheet: cfg.Sheet}
	case "csv":
		rr = csvRows{path: cfg.Path}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if !cfg.SkipDone {
		done = nil
	}
	return &tableSource{cfg: cfg, rows: rr, done: done, log: log.With(logx.Comp("source"))}, nil
}

// rowReader returns all rows including the header.
type rowReader interface {
	rows(ctx context.Context) ([][]string, error)
}

type tableSource struct {
	cfg  Config
	rows rowReader
	done Done
	log  logx.Logger
}

func (s *tableSource) Load(ctx context.Context) ([]job.Job, error) {
	rows, err := s.rows.rows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrEmpty
	}
	header := make([]string, len(rows[0]))
	keyIdx, seqIdx := -1, -1
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(h))
		header[i] = h
		switch h {
		case strings.ToLower(s.cfg.KeyColumn):
			keyIdx = i
		case strings.ToLower(s.cfg.SeqColumn):
			seqIdx = i
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoKeyColumn, s.cfg.KeyColumn)
	}
	if s.cfg.StartSeq > 0 && seqIdx < 0 {
		return nil, fmt.Errorf("%w: %q (needed by start_seq %d)", ErrNoSeqColumn, s.cfg.SeqColumn, s.cfg.StartSeq)
	}

	var jobs []job.Job
	skippedSeq, skippedDone := 0, 0
	for i, row := range rows[1:] {
		rowNum := i + 2
		key := cell(row, keyIdx)
		if key == "" {
			continue
		}
		if s.cfg.StartSeq > 0 {
			seq, err := strconv.Atoi(cell(row, seqIdx))
			if err != nil {
				return nil, fmt.Errorf("source: row %d: invalid %s %q", rowNum, s.cfg.SeqColumn, cell(row, seqIdx))
			}
			if seq < s.cfg.StartSeq {
				skippedSeq++
				continue
			}
		}
		if s.done != nil {
			ok, err := s.done.IsDone(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("source: check %s: %w", key, err)
			}
			if ok {
				skippedDone++
				continue
			}
		}
		payload := make(map[string]string, len(header))
		for c, h := range header {
			if h != "" {
				payload[h] = cell(row, c)
			}
		}
		jobs = append(jobs, job.Job{Key: key, Row: rowNum, Payload: payload})
	}

	s.log.Info("jobs loaded",
		logx.String("path", s.cfg.Path),
		logx.Int("jobs", len(jobs)),
		logx.Int("skipped_seq", skippedSeq),
		logx.Int("skipped_done", skippedDone),
	)
	if len(jobs) == 0 && skippedDone == 0 {
		return nil, ErrEmpty
	}
	return jobs, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
