package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/goldfish-inc/discoeval"
)

const defaultSheet = "Sheet1"

// Workbook collects splits into an Excel workbook, one sheet per split.
// Columns are key, the task's text fields, label and label_id.
type Workbook struct {
	mu     sync.Mutex
	f      *excelize.File
	sheets []string
}

func NewWorkbook() *Workbook {
	return &Workbook{f: excelize.NewFile()}
}

func (b *Workbook) Load(ctx context.Context, r *discoeval.Reader, split discoeval.Split) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sheet := string(split)
	if _, err := b.f.NewSheet(sheet); err != nil {
		return 0, fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	b.sheets = append(b.sheets, sheet)

	sw, err := b.f.NewStreamWriter(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to open sheet %s: %w", sheet, err)
	}

	task := r.Task()
	header := make([]interface{}, 0, task.Arity()+3)
	header = append(header, "key")
	for _, name := range task.Fields {
		header = append(header, name)
	}
	header = append(header, discoeval.LabelField, "label_id")
	if err := sw.SetRow("A1", header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	n := 0
	for r.Next() {
		if n+2 > excelize.TotalRows {
			return n, fmt.Errorf("split %s exceeds %d rows", split, excelize.TotalRows)
		}
		ex := r.Example()
		row := make([]interface{}, 0, len(header))
		row = append(row, ex.Key)
		for _, f := range ex.Fields {
			row = append(row, cellText(f))
		}
		row = append(row, ex.Label, ex.LabelID)

		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return n, err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return n, fmt.Errorf("failed to write row %d: %w", n+2, err)
		}
		n++
	}
	if err := r.Err(); err != nil {
		return n, err
	}
	if err := sw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush sheet %s: %w", sheet, err)
	}
	return n, nil
}

// WriteTo drops the default empty sheet and writes the workbook.
func (b *Workbook) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.sheets) > 0 {
		if err := b.f.DeleteSheet(defaultSheet); err != nil {
			return 0, fmt.Errorf("failed to drop default sheet: %w", err)
		}
		if idx, err := b.f.GetSheetIndex(b.sheets[0]); err == nil && idx >= 0 {
			b.f.SetActiveSheet(idx)
		}
	}
	return b.f.WriteTo(w)
}

func (b *Workbook) Close() error {
	return b.f.Close()
}
