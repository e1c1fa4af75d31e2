package mapping

import "strings"

// RawRow is one unparsed input row keyed by zero based column index.
type RawRow map[int]any

// MappedRow is a row renamed to target fields, values still untyped.
type MappedRow map[string]any

// Map applies tpl to row. Columns the row lacks stay absent from the result
// and keys the template does not name are never produced.
func Map(tpl *Template, row RawRow) MappedRow {
	out := make(MappedRow, len(tpl.Mapping))
	for _, f := range tpl.Mapping {
		if f.Value == "" {
			continue
		}
		if v, ok := row[f.Column]; ok {
			out[f.Value] = v
		}
	}
	return out
}

// RowFromCells builds a RawRow from cells in column order.
func RowFromCells[T any](cells []T) RawRow {
	row := make(RawRow, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

// RowFromRecord aligns a header keyed record to column positions using the
// expected headers. Header comparison ignores case and surrounding spaces.
func RowFromRecord(headers []string, record map[string]any) RawRow {
	byHeader := make(map[string]any, len(record))
	for k, v := range record {
		byHeader[normalizeHeader(k)] = v
	}

	row := make(RawRow, len(headers))
	for i, h := range headers {
		if v, ok := byHeader[normalizeHeader(h)]; ok {
			row[i] = v
		}
	}
	return row
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
