// Package fieldtype holds the field type tags a mapping template may declare
// and the validation rule bound to each of them.
package fieldtype

import (
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

type Tag string

const (
	Integer  Tag = "INTEGER"
	Decimal  Tag = "DECIMAL"
	Date     Tag = "DATE"
	DateOnly Tag = "DATEONLY"
	JSON     Tag = "JSON"
	Default  Tag = "DEFAULT"
)

// MobilePhonesField is the one target field whose JSON value may also be
// written as a comma separated list, e.g. "0811,0822".
const MobilePhonesField = "mobilePhones"

// Rule messages are shown to operators verbatim.
var (
	ErrNotInteger  = errors.New("must be an integer")
	ErrNotNumber   = errors.New("must be a number")
	ErrNotDate     = errors.New("must be in YYYY-MM-DD format")
	ErrInvalidJSON = errors.New("invalid JSON format")
)

var (
	integerPattern = regexp.MustCompile(`^-?[0-9]+$`)
	decimalPattern = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?$`)
	datePattern    = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)
)

// Rule checks one present value of the named target field.
type Rule func(field string, value any) error

// ParseTag normalizes a tag as written by an operator. Unknown and empty
// tags become Default.
func ParseTag(s string) Tag {
	switch t := Tag(strings.ToUpper(strings.TrimSpace(s))); t {
	case Integer, Decimal, Date, DateOnly, JSON:
		return t
	default:
		return Default
	}
}

func (t *Tag) UnmarshalText(text []byte) error {
	*t = ParseTag(string(text))
	return nil
}

// RuleFor returns the rule bound to tag. Every rule accepts empty values.
func RuleFor(tag Tag) Rule {
	switch ParseTag(string(tag)) {
	case Integer:
		return skipEmpty(checkInteger)
	case Decimal:
		return skipEmpty(checkDecimal)
	case Date, DateOnly:
		return skipEmpty(checkDate)
	case JSON:
		return skipEmpty(checkJSON)
	default:
		return acceptAny
	}
}

// Check runs the rule for tag against value.
func Check(field string, tag Tag, value any) error {
	return RuleFor(tag)(field, value)
}

// IsEmpty reports whether value counts as absent: nil or the empty string.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	}
	return false
}

// IsStructured reports whether value is already a sequence or a key/value
// mapping rather than a scalar.
func IsStructured(value any) bool {
	if value == nil {
		return false
	}
	if _, ok := value.([]byte); ok {
		return false
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}

// Text renders a scalar cell value the way it would appear in a sheet.
func Text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(b)
}

func skipEmpty(rule Rule) Rule {
	return func(field string, value any) error {
		if IsEmpty(value) {
			return nil
		}
		return rule(field, value)
	}
}

func acceptAny(string, any) error { return nil }

func checkInteger(_ string, value any) error {
	if IsStructured(value) || !integerPattern.MatchString(Text(value)) {
		return ErrNotInteger
	}
	return nil
}

func checkDecimal(_ string, value any) error {
	if IsStructured(value) {
		return ErrNotNumber
	}
	if _, err := parseDecimal(Text(value)); err != nil {
		return ErrNotNumber
	}
	return nil
}

// TODO: the pattern accepts impossible dates such as 2024-13-40; decide with
// the import operators whether calendar checks belong here.
func checkDate(_ string, value any) error {
	if IsStructured(value) || !datePattern.MatchString(Text(value)) {
		return ErrNotDate
	}
	return nil
}

func checkJSON(field string, value any) error {
	if IsStructured(value) {
		return nil
	}
	text := strings.TrimSpace(Text(value))
	if looksStructured(text) {
		if gjson.Valid(text) {
			return nil
		}
		return ErrInvalidJSON
	}
	if field == MobilePhonesField {
		if _, ok := splitList(text); ok {
			return nil
		}
	}
	return ErrInvalidJSON
}

func looksStructured(text string) bool {
	return strings.HasPrefix(text, "[") || strings.HasPrefix(text, "{")
}

// splitList splits a comma separated shorthand list. Every token must be
// non-empty after trimming.
func splitList(text string) ([]string, bool) {
	if text == "" {
		return nil, false
	}
	parts := strings.Split(text, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, false
		}
		tokens = append(tokens, p)
	}
	return tokens, true
}

func parseDecimal(text string) (float64, error) {
	if !decimalPattern.MatchString(text) {
		return 0, ErrNotNumber
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// overflow to +-Inf is not a finite number
		return 0, ErrNotNumber
	}
	return f, nil
}
