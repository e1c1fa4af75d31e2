// Package validation checks mapped rows and reports every failing field.
package validation

import (
	"fmt"
	"sort"
	"strings"

	pkgerrors "debtor-import/pkg/errors"
)

// Report maps a target field, or a dotted path for nested fields, to the
// message explaining why its value was rejected. An empty report accepts
// the row.
type Report map[string]string

// Record is an accepted row.
type Record map[string]any

func (r Report) Empty() bool {
	return len(r) == 0
}

func (r Report) Add(field string, err error) {
	r[field] = err.Error()
}

// Fields returns the failing fields in lexical order.
func (r Report) Fields() []string {
	fields := make([]string, 0, len(r))
	for f := range r {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Errors lists the report as field errors, ordered by field.
func (r Report) Errors(row map[string]any) []pkgerrors.ValidationError {
	errs := make([]pkgerrors.ValidationError, 0, len(r))
	for _, f := range r.Fields() {
		errs = append(errs, pkgerrors.ValidationError{
			Field:   f,
			Value:   row[f],
			Message: r[f],
		})
	}
	return errs
}

func (r Report) String() string {
	parts := make([]string, 0, len(r))
	for _, f := range r.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", f, r[f]))
	}
	return strings.Join(parts, "; ")
}

// Err returns nil for an empty report.
func (r Report) Err() error {
	if r.Empty() {
		return nil
	}
	return fmt.Errorf("%w: %s", pkgerrors.ErrRowValidationFailed, r.String())
}
