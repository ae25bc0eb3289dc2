package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser reads statements from spreadsheets: one statement per row,
// subject, predicate and object in the first three columns. Sheets are
// read in workbook order. Rows with an empty subject, predicate or object
// are skipped, as is a leading header row starting with "subject".
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string, h Handler) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	h.Start()
	for _, sheet := range f.GetSheetList() {
		rows, err := f.Rows(sheet)
		if err != nil {
			return fmt.Errorf("reading sheet %s: %w", sheet, err)
		}
		n := 0
		for rows.Next() {
			n++
			if err := ctx.Err(); err != nil {
				rows.Close()
				return err
			}
			cols, err := rows.Columns()
			if err != nil {
				rows.Close()
				return fmt.Errorf("sheet %s row %d: %w", sheet, n, err)
			}
			if len(cols) < 3 || cols[0] == "" || cols[1] == "" || cols[2] == "" {
				continue
			}
			if n == 1 && strings.EqualFold(cols[0], "subject") {
				continue
			}
			if err := h.Statement(Statement{
				Subject:   strings.TrimSpace(cols[0]),
				Predicate: strings.TrimSpace(cols[1]),
				Object:    strings.TrimSpace(cols[2]),
			}); err != nil {
				rows.Close()
				return err
			}
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("closing sheet %s: %w", sheet, err)
		}
	}
	return h.Finish()
}
