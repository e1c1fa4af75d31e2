// Package schema validates mapped rows against a code owned schema, coercing
// values to their semantic types and enforcing required, conditional and
// constraint rules.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"debtor-import/internal/fieldtype"
	"debtor-import/internal/mapping"
	"debtor-import/internal/validation"

	"github.com/go-playground/validator/v10"
)

const StrategyName = "schema"

var (
	ErrRequired  = errors.New("is required")
	ErrNotScalar = errors.New("must be a single value")
)

// FieldSpec declares one field. Path may address nested values with dots.
type FieldSpec struct {
	Path       string
	Type       fieldtype.Tag
	Required   bool
	RequiredIf *Condition
	// Rules are validator tags applied to the coerced value, e.g. "gte=0".
	Rules string
}

// Condition holds when the raw value at Path equals Equals.
type Condition struct {
	Path   string
	Equals string
}

type Schema struct {
	Name     string
	Version  int
	Fields   []FieldSpec
	validate *validator.Validate
}

func New(name string, version int, fields ...FieldSpec) *Schema {
	return &Schema{
		Name:     name,
		Version:  version,
		Fields:   fields,
		validate: validator.New(),
	}
}

// Validate is a shorthand for s.Validate(row).
func Validate(row mapping.MappedRow, s *Schema) (validation.Record, validation.Report) {
	return s.Validate(row)
}

// Validate checks every field of the schema and returns either the typed
// record or a report keyed by field path. Keys the schema does not declare
// are carried over untouched.
func (s *Schema) Validate(row mapping.MappedRow) (validation.Record, validation.Report) {
	report := make(validation.Report)
	record := validation.Record(copyMap(row))

	for _, fs := range s.Fields {
		raw, loc := lookup(row, fs.Path)
		if loc == notFound || fieldtype.IsEmpty(raw) {
			if fs.Required || s.conditionHolds(row, fs.RequiredIf) {
				report.Add(fs.Path, ErrRequired)
			}
			continue
		}

		typed, err := fieldtype.Coerce(lastSegment(fs.Path), fs.Type, raw)
		if err != nil {
			report.Add(fs.Path, err)
			continue
		}

		if fs.Type != fieldtype.JSON && fieldtype.IsStructured(typed) {
			report.Add(fs.Path, ErrNotScalar)
			continue
		}

		if msg, ok := s.checkRules(typed, fs.Rules); !ok {
			report[fs.Path] = msg
			continue
		}

		store(record, fs.Path, loc, typed)
	}

	if !report.Empty() {
		return nil, report
	}
	return record, report
}

// checkRules applies the validator tags to value. Some validator builtins
// panic on kinds they do not support; that is reported as a rejection.
func (s *Schema) checkRules(value any, rules string) (msg string, ok bool) {
	if rules == "" {
		return "", true
	}
	defer func() {
		if r := recover(); r != nil {
			msg, ok = "has an unsupported value", false
		}
	}()
	if err := s.validate.Var(value, rules); err != nil {
		return ruleMessage(err), false
	}
	return "", true
}

func (s *Schema) conditionHolds(row mapping.MappedRow, c *Condition) bool {
	if c == nil {
		return false
	}
	raw, loc := lookup(row, c.Path)
	if loc == notFound {
		return false
	}
	return strings.TrimSpace(fieldtype.Text(raw)) == c.Equals
}

// Strategy adapts a schema to validation.Strategy.
type Strategy struct {
	schema *Schema
}

func NewStrategy(s *Schema) *Strategy {
	return &Strategy{schema: s}
}

func (st *Strategy) Name() string {
	return StrategyName
}

func (st *Strategy) Validate(row mapping.MappedRow) (validation.Record, validation.Report) {
	return st.schema.Validate(row)
}

type location int

const (
	notFound location = iota
	flatKey
	nested
)

// lookup finds path either as a literal key or by walking nested maps.
func lookup(row map[string]any, path string) (any, location) {
	if v, ok := row[path]; ok {
		return v, flatKey
	}
	segments := strings.Split(path, ".")
	if len(segments) == 1 {
		return nil, notFound
	}

	var cur any = row
	for _, seg := range segments {
		m, ok := asMap(cur)
		if !ok {
			return nil, notFound
		}
		if cur, ok = m[seg]; !ok {
			return nil, notFound
		}
	}
	return cur, nested
}

func store(record validation.Record, path string, loc location, value any) {
	if loc == flatKey {
		record[path] = value
		return
	}
	segments := strings.Split(path, ".")
	m := map[string]any(record)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := asMap(m[seg])
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
	m[segments[len(segments)-1]] = value
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case mapping.MappedRow:
		return m, true
	case validation.Record:
		return m, true
	}
	return nil, false
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		if m, ok := asMap(v); ok {
			dst[k] = copyMap(m)
			continue
		}
		dst[k] = v
	}
	return dst
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

func ruleMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return ErrRequired.Error()
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(param), ", ")
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be a valid E.164 phone number"
	case "numeric":
		return "must be numeric"
	case "min", "gte":
		return boundMessage("at least", param, fe.Kind())
	case "max", "lte":
		return boundMessage("at most", param, fe.Kind())
	case "gt":
		return "must be greater than " + param
	case "lt":
		return "must be less than " + param
	case "len":
		return boundMessage("exactly", param, fe.Kind())
	}
	return fmt.Sprintf("failed the %s check", fe.Tag())
}

func boundMessage(bound, param string, kind reflect.Kind) string {
	switch kind {
	case reflect.String:
		return fmt.Sprintf("must be %s %s characters long", bound, param)
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("must contain %s %s items", bound, param)
	}
	return fmt.Sprintf("must be %s %s", bound, param)
}
