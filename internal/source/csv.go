package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
)

type csvRows struct{ path string }

func (c csvRows) rows(ctx context.Context) ([][]string, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("source: parse %s: %w", c.path, err)
	}
	return rows, ctx.Err()
}
