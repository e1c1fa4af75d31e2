package excel

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"debtor-import/internal/mapping"
	"debtor-import/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// Sheet is a parsed spreadsheet: the header line and the data rows below it.
// Lines holds the 1-based sheet line of each row, since blank lines are
// dropped while parsing.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []mapping.RawRow
	Lines   []int
}

// LineNumber returns the sheet line of data row i when no line above it was
// skipped.
func LineNumber(i int) int {
	return i + 2
}

// Line returns the sheet line data row i was read from.
func (s *Sheet) Line(i int) int {
	if i < len(s.Lines) {
		return s.Lines[i]
	}
	return LineNumber(i)
}

type Parser struct {
	sheetName string
}

// NewParser reads the named worksheet, or the first one when sheetName is
// empty.
func NewParser(sheetName string) *Parser {
	return &Parser{sheetName: sheetName}
}

func (p *Parser) Parse(ctx context.Context, data []byte) (*Sheet, error) {
	// Create file from bytes
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer file.Close()

	sheetName := p.sheetName
	if sheetName == "" {
		sheets := file.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.ErrInvalidFileFormat
		}
		sheetName = sheets[0]
	}

	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	// GetRows keeps interior empty rows, so the slice index is the line.
	return buildSheet(ctx, sheetName, rows, nil)
}

// buildSheet turns header + data records into a Sheet. lines[k] is the sheet
// line of rows[k]; nil means rows[k] sits on line k+1.
func buildSheet(ctx context.Context, name string, rows [][]string, lines []int) (*Sheet, error) {
	if len(rows) < 2 { // Header + at least one data row
		return nil, errors.ErrEmptySheet
	}

	sheet := &Sheet{Name: name, Headers: make([]string, len(rows[0]))}
	for i, h := range rows[0] {
		sheet.Headers[i] = strings.TrimSpace(h)
	}

	for k := 1; k < len(rows); k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells := rows[k]
		if blank(cells) {
			continue
		}
		row := make(mapping.RawRow, len(cells))
		for i, c := range cells {
			row[i] = strings.TrimSpace(c)
		}
		sheet.Rows = append(sheet.Rows, row)

		line := k + 1
		if lines != nil {
			line = lines[k]
		}
		sheet.Lines = append(sheet.Lines, line)
	}

	if len(sheet.Rows) == 0 {
		return nil, errors.ErrEmptySheet
	}
	return sheet, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
