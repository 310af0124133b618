package source

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

type xlsxRows struct {
	path  string
	sheet string
}

func (x xlsxRows) rows(ctx context.Context) ([][]string, error) {
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", x.path, err)
	}
	defer f.Close()

	sheet := x.sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("source: read sheet %q: %w", sheet, err)
	}
	return rows, ctx.Err()
}
