package field

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Value is a sealed interface over the supported field value kinds.
// Only Text, Number, Date, Bool, Enum and JSON implement it.
// A nil Value means "no value" (a cleared field or an unknown prior value).
type Value interface {
	Kind() Kind
	String() string
	fieldValue() // sealed
}

// Text is a free-form string value.
type Text string

func (Text) fieldValue()      {}
func (Text) Kind() Kind       { return KindText }
func (t Text) String() string { return string(t) }

// Number is a floating point value.
type Number float64

func (Number) fieldValue() {}
func (Number) Kind() Kind  { return KindNumber }
func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// Bool is a boolean value.
type Bool bool

func (Bool) fieldValue()      {}
func (Bool) Kind() Kind       { return KindBool }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Enum is a value drawn from a field's option set.
type Enum string

func (Enum) fieldValue()      {}
func (Enum) Kind() Kind       { return KindEnum }
func (e Enum) String() string { return string(e) }

// JSON is an arbitrary JSON document.
type JSON json.RawMessage

func (JSON) fieldValue()      {}
func (JSON) Kind() Kind       { return KindJSON }
func (j JSON) String() string { return string(bytes.TrimSpace(j)) }

// Date is a calendar date without time of day or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (Date) fieldValue() {}
func (Date) Kind() Kind  { return KindDate }

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns midnight UTC on the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after o.
func (d Date) Compare(o Date) int {
	return d.Time().Compare(o.Time())
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string. Impossible calendar dates such as
// 2023-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals in tests and static configuration.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
