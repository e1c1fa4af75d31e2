package excel

import (
	stderrors "errors"
	"strings"

	"debtor-import/internal/mapping"
	"debtor-import/pkg/errors"
)

// Align reorders the sheet's columns to the expected header order so that
// template column indices line up. Header comparison ignores case and
// surrounding spaces. Every missing header is reported.
func Align(sheet *Sheet, expected []string) (*Sheet, error) {
	if len(expected) == 0 {
		return sheet, nil
	}

	positions := make(map[string]int, len(sheet.Headers))
	for i, h := range sheet.Headers {
		key := normalize(h)
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}

	source := make([]int, len(expected))
	var missing []error
	for i, h := range expected {
		pos, ok := positions[normalize(h)]
		if !ok {
			missing = append(missing, errors.ValidationError{
				Field:   h,
				Value:   nil,
				Message: "column missing from sheet header",
			})
			continue
		}
		source[i] = pos
	}
	if len(missing) > 0 {
		return nil, stderrors.Join(append([]error{errors.ErrInvalidFileFormat}, missing...)...)
	}

	aligned := &Sheet{Name: sheet.Name, Headers: expected, Rows: make([]mapping.RawRow, len(sheet.Rows)), Lines: sheet.Lines}
	for r, row := range sheet.Rows {
		out := make(mapping.RawRow, len(expected))
		for i, pos := range source {
			if v, ok := row[pos]; ok {
				out[i] = v
			}
		}
		aligned.Rows[r] = out
	}
	return aligned, nil
}

func normalize(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
