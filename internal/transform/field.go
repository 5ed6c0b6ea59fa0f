package transform

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// FieldState says what a raw payload held for one field.
type FieldState uint8

const (
	Absent FieldState = iota // key missing or JSON null
	Present
	Malformed // present but of the wrong shape
)

// Field is a decoded raw value together with its state. Value is only
// meaningful when State is Present.
type Field[T any] struct {
	State FieldState
	Value T
}

func present[T any](v T) Field[T] { return Field[T]{State: Present, Value: v} }

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
	jsonNull = []byte("null")
)

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

// DecimalField accepts JSON numbers only. Quoted numbers are malformed.
func DecimalField(raw json.RawMessage) Field[decimal.Decimal] {
	if isAbsent(raw) {
		return Field[decimal.Decimal]{}
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		return Field[decimal.Decimal]{State: Malformed}
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return Field[decimal.Decimal]{State: Malformed}
	}
	return present(d)
}

// IntField truncates fractional input toward zero. Values outside the
// signed 64-bit range are malformed.
func IntField(raw json.RawMessage) Field[int64] {
	d := DecimalField(raw)
	if d.State != Present {
		return Field[int64]{State: d.State}
	}
	t := d.Value.Truncate(0)
	if t.GreaterThan(maxInt64) || t.LessThan(minInt64) {
		return Field[int64]{State: Malformed}
	}
	return present(t.IntPart())
}

func StringField(raw json.RawMessage) Field[string] {
	if isAbsent(raw) {
		return Field[string]{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Field[string]{State: Malformed}
	}
	return present(s)
}

// TimeField parses an RFC 3339 timestamp string.
func TimeField(raw json.RawMessage) Field[time.Time] {
	s := StringField(raw)
	if s.State != Present {
		return Field[time.Time]{State: s.State}
	}
	t, err := time.Parse(time.RFC3339Nano, s.Value)
	if err != nil {
		return Field[time.Time]{State: Malformed}
	}
	return present(t.UTC())
}

// fieldReader pulls typed fields out of a raw record and keeps the first
// failure. Once failed, later reads still return zero values so callers can
// decode a whole record before checking err.
type fieldReader struct {
	coinID string
	lookup func(name string) json.RawMessage
	err    *TransformError
}

func (r *fieldReader) fail(name, reason string) {
	if r.err == nil {
		r.err = &TransformError{CoinID: r.coinID, Field: name, Reason: reason}
	}
}

func check[T any](r *fieldReader, name string, f Field[T], required bool) Field[T] {
	switch {
	case f.State == Malformed:
		r.fail(name, ReasonMalformed)
	case f.State == Absent && required:
		r.fail(name, ReasonMissing)
	}
	return f
}

func (r *fieldReader) requiredString(name string) string {
	return check(r, name, StringField(r.lookup(name)), true).Value
}

// stringOrEmpty treats an absent string as "" and leaves the decision to
// the caller.
func (r *fieldReader) stringOrEmpty(name string) string {
	return check(r, name, StringField(r.lookup(name)), false).Value
}

func (r *fieldReader) requiredDecimal(name string) decimal.Decimal {
	return check(r, name, DecimalField(r.lookup(name)), true).Value
}

func (r *fieldReader) optionalDecimal(name string) decimal.NullDecimal {
	f := check(r, name, DecimalField(r.lookup(name)), false)
	return decimal.NullDecimal{Decimal: f.Value, Valid: f.State == Present}
}

func (r *fieldReader) optionalInt(name string) null.Int {
	f := check(r, name, IntField(r.lookup(name)), false)
	return null.NewInt(f.Value, f.State == Present)
}

func (r *fieldReader) optionalTime(name string) null.Time {
	f := check(r, name, TimeField(r.lookup(name)), false)
	return null.NewTime(f.Value, f.State == Present)
}
