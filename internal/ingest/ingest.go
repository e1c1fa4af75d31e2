// Package ingest runs a parsed sheet through a mapping template and a
// validation strategy.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"debtor-import/internal/excel"
	"debtor-import/internal/mapping"
	"debtor-import/internal/model"
	"debtor-import/internal/schema"
	"debtor-import/internal/validation"
	"debtor-import/pkg/errors"
)

var debtorSchema = schema.Debtor()

// SelectStrategy returns the validation strategy registered under name.
// An empty name selects the template's own field types.
func SelectStrategy(name string, tpl *mapping.Template) (validation.Strategy, error) {
	switch name {
	case "", validation.FieldTypeStrategyName:
		return validation.NewFieldTypeStrategy(tpl), nil
	case schema.StrategyName:
		return schema.NewStrategy(debtorSchema), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownStrategy, name)
	}
}

// Result is a processed sheet split into accepted and rejected lines.
type Result struct {
	Outcomes []validation.Outcome
	Accepted int
	Rejected int
}

// Process maps and validates every row of sheet, in sheet order. Each
// outcome carries the sheet line of its row.
func Process(ctx context.Context, tpl *mapping.Template, sheet *excel.Sheet, strategy validation.Strategy, workers int) (*Result, error) {
	outcomes, err := validation.Batch(ctx, tpl, sheet.Rows, strategy, workers)
	if err != nil {
		return nil, err
	}

	res := &Result{Outcomes: outcomes}
	for i := range outcomes {
		outcomes[i].Line = sheet.Line(i)
		if outcomes[i].Accepted() {
			res.Accepted++
		} else {
			res.Rejected++
		}
	}
	return res, nil
}

// StagedRows converts outcomes to rows for the staging table.
func (r *Result) StagedRows(fileID int64) ([]model.StagedRow, error) {
	staged := make([]model.StagedRow, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		row := model.StagedRow{FileID: fileID, LineNumber: o.Line}
		var err error
		if o.Accepted() {
			row.Status = model.RowStatusAccepted
			row.Record, err = json.Marshal(o.Record)
		} else {
			row.Status = model.RowStatusRejected
			row.Errors, err = json.Marshal(o.Report)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", row.LineNumber, err)
		}
		staged = append(staged, row)
	}
	return staged, nil
}

// Events builds one publish event per accepted outcome.
func (r *Result) Events(job model.ImportJob, strategy string, now time.Time) []model.AcceptedRecordEvent {
	var events []model.AcceptedRecordEvent
	for _, o := range r.Outcomes {
		if !o.Accepted() {
			continue
		}
		events = append(events, model.AcceptedRecordEvent{
			FileID:     job.FileID,
			TemplateID: job.TemplateID,
			LineNumber: o.Line,
			Strategy:   strategy,
			Record:     o.Record,
			AcceptedAt: now,
		})
	}
	return events
}

// PreviewRows converts outcomes to the API preview shape.
func (r *Result) PreviewRows() []model.PreviewRow {
	rows := make([]model.PreviewRow, len(r.Outcomes))
	for i, o := range r.Outcomes {
		rows[i] = model.PreviewRow{
			LineNumber: o.Line,
			Accepted:   o.Accepted(),
			Record:     o.Record,
		}
		if !o.Accepted() {
			rows[i].Errors = o.Report
		}
	}
	return rows
}
