package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type CSVParser struct {
	comma rune
}

func NewCSVParser(comma rune) *CSVParser {
	if comma == 0 {
		comma = ','
	}
	return &CSVParser{comma: comma}
}

func (p *CSVParser) Parse(ctx context.Context, data []byte) (*Sheet, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.Comma = p.comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	// The reader skips empty lines, so each record's line comes from FieldPos.
	var (
		rows  [][]string
		lines []int
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, record)
		lines = append(lines, line)
	}
	return buildSheet(ctx, "csv", rows, lines)
}
