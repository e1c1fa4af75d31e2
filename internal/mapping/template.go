// Package mapping defines import templates and applies them to raw sheet rows.
package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"debtor-import/internal/fieldtype"
	pkgerrors "debtor-import/pkg/errors"

	"gopkg.in/yaml.v3"
)

// MappingField maps one input column to one target field.
type MappingField struct {
	Column int           `json:"column" yaml:"column"`
	Value  string        `json:"value" yaml:"value"`
	Type   fieldtype.Tag `json:"type,omitempty" yaml:"type,omitempty"`
}

// Template is an operator defined import format. Ingestion only reads it;
// edits go through the template repository.
type Template struct {
	ID        int64          `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Headers   []string       `json:"headers" yaml:"headers"`
	Mapping   []MappingField `json:"mapping" yaml:"mapping"`
	CreatedBy string         `json:"created_by" yaml:"created_by"`
	UpdatedBy string         `json:"updated_by" yaml:"updated_by"`
	CreatedAt time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"-"`
}

// Fields returns a copy of the mapping ordered by column position.
func (t *Template) Fields() []MappingField {
	fields := make([]MappingField, len(t.Mapping))
	copy(fields, t.Mapping)
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Column < fields[j].Column
	})
	return fields
}

// Field looks up the mapping entry writing to the named target field.
func (t *Template) Field(name string) (MappingField, bool) {
	for _, f := range t.Mapping {
		if f.Value == name {
			return f, true
		}
	}
	return MappingField{}, false
}

// Validate reports every problem with the template definition at once.
func (t *Template) Validate() error {
	var errs []error

	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(t.Mapping) == 0 {
		errs = append(errs, errors.New("mapping must contain at least one field"))
	}

	seen := make(map[string]int, len(t.Mapping))
	for _, f := range t.Fields() {
		switch {
		case strings.TrimSpace(f.Value) == "":
			errs = append(errs, fmt.Errorf("column %d: target field is required", f.Column))
			continue
		case f.Column < 0:
			errs = append(errs, fmt.Errorf("field %q: column must not be negative", f.Value))
		case len(t.Headers) > 0 && f.Column >= len(t.Headers):
			errs = append(errs, fmt.Errorf("field %q: column %d is beyond the %d headers", f.Value, f.Column, len(t.Headers)))
		}
		if prev, dup := seen[f.Value]; dup {
			errs = append(errs, fmt.Errorf("field %q: mapped from both column %d and column %d", f.Value, prev, f.Column))
			continue
		}
		seen[f.Value] = f.Column
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidTemplate, errors.Join(errs...))
}

// LoadTemplate parses a YAML or JSON template definition and validates it.
func LoadTemplate(data []byte) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	for i := range tpl.Mapping {
		tpl.Mapping[i].Type = fieldtype.ParseTag(string(tpl.Mapping[i].Type))
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return &tpl, nil
}
