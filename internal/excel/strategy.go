package excel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"debtor-import/pkg/errors"
)

type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) (*Sheet, error)
}

// StrategyFor picks a parser from the uploaded file name.
func StrategyFor(filename string) (ParsingStrategy, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		return NewParser(""), nil
	case ".csv":
		return NewCSVParser(','), nil
	case ".tsv":
		return NewCSVParser('\t'), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedFormat, ext)
	}
}
