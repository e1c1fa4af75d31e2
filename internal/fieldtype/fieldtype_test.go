package fieldtype_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debtor-import/internal/fieldtype"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		in   string
		want fieldtype.Tag
	}{
		{"INTEGER", fieldtype.Integer},
		{"integer", fieldtype.Integer},
		{" Decimal ", fieldtype.Decimal},
		{"DATEONLY", fieldtype.DateOnly},
		{"date", fieldtype.Date},
		{"JSON", fieldtype.JSON},
		{"", fieldtype.Default},
		{"GEOPOINT", fieldtype.Default},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fieldtype.ParseTag(tt.in), "ParseTag(%q)", tt.in)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		field string
		tag   fieldtype.Tag
		value any
		want  error
	}{
		{"integer", "age", fieldtype.Integer, "42", nil},
		{"negative integer", "age", fieldtype.Integer, "-7", nil},
		{"integer from number cell", "age", fieldtype.Integer, float64(12), nil},
		{"fraction is not integer", "age", fieldtype.Integer, "4.2", fieldtype.ErrNotInteger},
		{"letters are not integer", "age", fieldtype.Integer, "abc", fieldtype.ErrNotInteger},
		{"separators are not integer", "age", fieldtype.Integer, "1,000", fieldtype.ErrNotInteger},
		{"plus sign is not integer", "age", fieldtype.Integer, "+3", fieldtype.ErrNotInteger},

		{"decimal", "amount", fieldtype.Decimal, "4.2", nil},
		{"negative decimal", "amount", fieldtype.Decimal, "-0.5", nil},
		{"whole decimal", "amount", fieldtype.Decimal, "10", nil},
		{"exponent", "amount", fieldtype.Decimal, "1.5e3", nil},
		{"json number", "amount", fieldtype.Decimal, json.Number("3.25"), nil},
		{"letters are not decimal", "amount", fieldtype.Decimal, "abc", fieldtype.ErrNotNumber},
		{"overflow is not finite", "amount", fieldtype.Decimal, "1e400", fieldtype.ErrNotNumber},
		{"infinity is not finite", "amount", fieldtype.Decimal, "Inf", fieldtype.ErrNotNumber},

		{"date", "joined", fieldtype.Date, "2024-01-15", nil},
		{"dateonly", "joined", fieldtype.DateOnly, "2024-01-15", nil},
		{"pattern only", "joined", fieldtype.Date, "2024-13-40", nil},
		{"day first", "joined", fieldtype.Date, "15-01-2024", fieldtype.ErrNotDate},
		{"slashes", "joined", fieldtype.Date, "2024/01/15", fieldtype.ErrNotDate},
		{"timestamp", "joined", fieldtype.DateOnly, "2024-01-15T10:00:00Z", fieldtype.ErrNotDate},

		{"json array", "tags", fieldtype.JSON, "[1,2,3]", nil},
		{"json object", "meta", fieldtype.JSON, `{"a":1}`, nil},
		{"structured slice", "tags", fieldtype.JSON, []any{"x"}, nil},
		{"structured map", "meta", fieldtype.JSON, map[string]any{"a": 1}, nil},
		{"phone shorthand", "mobilePhones", fieldtype.JSON, "0811,0822", nil},
		{"single phone", "mobilePhones", fieldtype.JSON, "0811", nil},
		{"phone shorthand with blank token", "mobilePhones", fieldtype.JSON, "0811,,0822", fieldtype.ErrInvalidJSON},
		{"shorthand only for phones", "tags", fieldtype.JSON, "a,b", fieldtype.ErrInvalidJSON},
		{"plain text", "meta", fieldtype.JSON, "not json", fieldtype.ErrInvalidJSON},
		{"broken object", "meta", fieldtype.JSON, `{"a":`, fieldtype.ErrInvalidJSON},
		{"broken array for phones", "mobilePhones", fieldtype.JSON, "[0811", fieldtype.ErrInvalidJSON},

		{"default accepts anything", "note", fieldtype.Default, "anything at all", nil},
		{"unknown tag accepts anything", "note", fieldtype.Tag("GEOPOINT"), "x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fieldtype.Check(tt.field, tt.tag, tt.value)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheck_EmptyValuesPassEveryTag(t *testing.T) {
	tags := []fieldtype.Tag{
		fieldtype.Integer, fieldtype.Decimal, fieldtype.Date,
		fieldtype.DateOnly, fieldtype.JSON, fieldtype.Default,
	}
	for _, tag := range tags {
		assert.NoError(t, fieldtype.Check("x", tag, ""), "tag %s", tag)
		assert.NoError(t, fieldtype.Check("x", tag, nil), "tag %s", tag)
	}
}

func TestCheck_Idempotent(t *testing.T) {
	value := []any{"0811"}
	require.NoError(t, fieldtype.Check("mobilePhones", fieldtype.JSON, value))
	require.NoError(t, fieldtype.Check("mobilePhones", fieldtype.JSON, value))
	assert.Equal(t, []any{"0811"}, value)
}

func TestRuleMessages(t *testing.T) {
	assert.Equal(t, "must be an integer", fieldtype.ErrNotInteger.Error())
	assert.Equal(t, "must be a number", fieldtype.ErrNotNumber.Error())
	assert.Equal(t, "must be in YYYY-MM-DD format", fieldtype.ErrNotDate.Error())
	assert.Equal(t, "invalid JSON format", fieldtype.ErrInvalidJSON.Error())
}

func TestCoerce(t *testing.T) {
	got, err := fieldtype.Coerce("age", fieldtype.Integer, "-7")
	require.NoError(t, err)
	assert.Equal(t, int64(-7), got)

	got, err = fieldtype.Coerce("amount", fieldtype.Decimal, "4.25")
	require.NoError(t, err)
	assert.Equal(t, 4.25, got)

	got, err = fieldtype.Coerce("joined", fieldtype.Date, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = fieldtype.Coerce("meta", fieldtype.JSON, `{"a":1,"b":[true]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1), "b": []any{true}}, got)

	got, err = fieldtype.Coerce("mobilePhones", fieldtype.JSON, "0811, 0822")
	require.NoError(t, err)
	assert.Equal(t, []any{"0811", "0822"}, got)

	got, err = fieldtype.Coerce("note", fieldtype.Default, float64(10))
	require.NoError(t, err)
	assert.Equal(t, "10", got)

	got, err = fieldtype.Coerce("note", fieldtype.Integer, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCoerce_Failures(t *testing.T) {
	_, err := fieldtype.Coerce("age", fieldtype.Integer, "99999999999999999999")
	assert.ErrorIs(t, err, fieldtype.ErrOutOfRange)

	_, err = fieldtype.Coerce("joined", fieldtype.Date, "2024-13-40")
	assert.ErrorIs(t, err, fieldtype.ErrInvalidCalendarDate)

	_, err = fieldtype.Coerce("joined", fieldtype.Date, "15/01/2024")
	assert.ErrorIs(t, err, fieldtype.ErrNotDate)
}
