package fieldtype

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const DateLayout = "2006-01-02"

var (
	ErrOutOfRange          = errors.New("is out of range")
	ErrInvalidCalendarDate = errors.New("must be a valid calendar date")
)

// Coerce checks value against tag and converts it to its semantic Go type:
// int64 for Integer, float64 for Decimal, time.Time for Date and DateOnly,
// a decoded structure for JSON and the cell text for Default. Empty values
// coerce to nil.
func Coerce(field string, tag Tag, value any) (any, error) {
	if IsEmpty(value) {
		return nil, nil
	}
	if err := Check(field, tag, value); err != nil {
		return nil, err
	}

	switch ParseTag(string(tag)) {
	case Integer:
		n, err := strconv.ParseInt(Text(value), 10, 64)
		if err != nil {
			return nil, ErrOutOfRange
		}
		return n, nil
	case Decimal:
		f, err := parseDecimal(Text(value))
		if err != nil {
			return nil, err
		}
		return f, nil
	case Date, DateOnly:
		d, err := time.Parse(DateLayout, Text(value))
		if err != nil {
			return nil, ErrInvalidCalendarDate
		}
		return d, nil
	case JSON:
		return decodeJSON(value), nil
	default:
		if IsStructured(value) {
			return value, nil
		}
		return Text(value), nil
	}
}

// decodeJSON assumes value already passed checkJSON.
func decodeJSON(value any) any {
	if IsStructured(value) {
		return value
	}
	text := strings.TrimSpace(Text(value))
	if looksStructured(text) {
		return gjson.Parse(text).Value()
	}
	tokens, _ := splitList(text)
	list := make([]any, len(tokens))
	for i, t := range tokens {
		list[i] = t
	}
	return list
}
