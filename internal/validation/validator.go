package validation

import (
	"context"
	"fmt"

	"debtor-import/internal/fieldtype"
	"debtor-import/internal/mapping"

	"golang.org/x/sync/errgroup"
)

// ValidateRow checks every declared field of row against its type tag.
// Fields the template does not declare are never checked, and empty values
// are always accepted.
func ValidateRow(row mapping.MappedRow, fields []mapping.MappingField) Report {
	report := make(Report)
	for _, f := range fields {
		value, ok := row[f.Value]
		if !ok || fieldtype.IsEmpty(value) {
			continue
		}
		if err := fieldtype.Check(f.Value, f.Type, value); err != nil {
			report.Add(f.Value, err)
		}
	}
	return report
}

// Strategy validates one mapped row, returning the accepted record or a
// non-empty report.
type Strategy interface {
	Name() string
	Validate(row mapping.MappedRow) (Record, Report)
}

// FieldTypeStrategy validates rows against the type tags of a template.
type FieldTypeStrategy struct {
	fields []mapping.MappingField
}

const FieldTypeStrategyName = "field_type"

// NewFieldTypeStrategy captures a snapshot of the template's fields, so later
// template edits do not affect rows checked by this strategy.
func NewFieldTypeStrategy(tpl *mapping.Template) *FieldTypeStrategy {
	return &FieldTypeStrategy{fields: tpl.Fields()}
}

func (s *FieldTypeStrategy) Name() string {
	return FieldTypeStrategyName
}

func (s *FieldTypeStrategy) Validate(row mapping.MappedRow) (Record, Report) {
	report := ValidateRow(row, s.fields)
	if !report.Empty() {
		return nil, report
	}
	record := make(Record, len(row))
	for k, v := range row {
		record[k] = v
	}
	return record, report
}

// Outcome is the result of one row of a batch. Line is the source line the
// row was read from, filled in by callers that know it.
type Outcome struct {
	Row    int    `json:"row"`
	Line   int    `json:"line,omitempty"`
	Record Record `json:"record,omitempty"`
	Report Report `json:"errors,omitempty"`
}

func (o Outcome) Accepted() bool {
	return o.Report.Empty()
}

// Batch maps and validates rows on up to workers goroutines. Outcomes keep
// the input order. Cancelling ctx stops the batch at a row boundary and
// returns the context error. A strategy panic aborts the batch with an error.
func Batch(ctx context.Context, tpl *mapping.Template, rows []mapping.RawRow, strategy Strategy, workers int) ([]Outcome, error) {
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]Outcome, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		i, row := i, row
		g.Go(func() (err error) {
			if err := gctx.Err(); err != nil {
				return err
			}
			// A panic here would escape every caller's recover.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("row %d: %s strategy panicked: %v", i, strategy.Name(), r)
				}
			}()
			record, report := strategy.Validate(mapping.Map(tpl, row))
			outcomes[i] = Outcome{Row: i, Record: record, Report: report}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
