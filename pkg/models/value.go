// Package models defines the core data structures shared by the stores,
// the critical-value cache and the goodness-of-fit tests.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MaxKeyLength is the longest key accepted by a key-value store.
const MaxKeyLength = 25

var (
	// ErrNotFound is returned by the HTTP layer when a lookup finds nothing.
	// Store lookups report absence with an ok flag instead.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedValueType is returned when a value is not one of
	// string, datetime, float or int.
	ErrUnsupportedValueType = errors.New("unsupported value type")

	// ErrCorruptValueType is returned when a persisted entry carries a type
	// tag that is not recognized. It means the database was modified by hand.
	ErrCorruptValueType = errors.New("unknown stored value type")

	// ErrInvalidKey is returned for empty keys or keys longer than MaxKeyLength.
	ErrInvalidKey = errors.New("invalid key")
)

// ValueType is the discriminant of a Value.
type ValueType string

// Persisted discriminants. The strings are part of the on-disk format.
const (
	TypeString   ValueType = "str"
	TypeDatetime ValueType = "datetime"
	TypeFloat    ValueType = "float"
	TypeInt      ValueType = "int"
)

// ParseValueType validates a persisted discriminant.
func ParseValueType(s string) (ValueType, error) {
	switch t := ValueType(s); t {
	case TypeString, TypeDatetime, TypeFloat, TypeInt:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrCorruptValueType, s)
	}
}

// Value is a tagged union holding exactly one of a string, a UTC timestamp,
// a float64 or an int64. The zero Value is invalid.
type Value struct {
	typ ValueType
	s   string
	t   time.Time
	f   float64
	i   int64
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{typ: TypeString, s: s} }

// DatetimeValue wraps a timestamp. The offset is dropped: the instant is
// kept and reported in UTC.
func DatetimeValue(t time.Time) Value { return Value{typ: TypeDatetime, t: t.UTC()} }

// FloatValue wraps a float64.
func FloatValue(f float64) Value { return Value{typ: TypeFloat, f: f} }

// IntValue wraps an int64.
func IntValue(i int64) Value { return Value{typ: TypeInt, i: i} }

// NewValue converts a Go value into a Value. Only strings, time.Time,
// floats and integers are accepted; nil and anything else fail with
// ErrUnsupportedValueType.
func NewValue(v any) (Value, error) {
	switch x := v.(type) {
	case string:
		return StringValue(x), nil
	case time.Time:
		return DatetimeValue(x), nil
	case float64:
		return FloatValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint8:
		return IntValue(int64(x)), nil
	case uint16:
		return IntValue(int64(x)), nil
	case uint32:
		return IntValue(int64(x)), nil
	case Value:
		if !x.Valid() {
			return Value{}, ErrUnsupportedValueType
		}
		return x, nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValueType, v)
	}
}

// Type returns the discriminant, or "" for the zero Value.
func (v Value) Type() ValueType { return v.typ }

// Valid reports whether v holds one of the supported types.
func (v Value) Valid() bool {
	switch v.typ {
	case TypeString, TypeDatetime, TypeFloat, TypeInt:
		return true
	}
	return false
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.typ == TypeString }

// AsDatetime returns the timestamp held by v, in UTC.
func (v Value) AsDatetime() (time.Time, bool) { return v.t, v.typ == TypeDatetime }

// AsFloat returns the float held by v.
func (v Value) AsFloat() (float64, bool) { return v.f, v.typ == TypeFloat }

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) { return v.i, v.typ == TypeInt }

// Interface returns the held value as string, time.Time, float64 or int64.
func (v Value) Interface() any {
	switch v.typ {
	case TypeString:
		return v.s
	case TypeDatetime:
		return v.t
	case TypeFloat:
		return v.f
	case TypeInt:
		return v.i
	}
	return nil
}

// Equal compares type and payload. Timestamps compare as instants.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString:
		return v.s == o.s
	case TypeDatetime:
		return v.t.Equal(o.t)
	case TypeFloat:
		return v.f == o.f
	case TypeInt:
		return v.i == o.i
	}
	return true
}

func (v Value) String() string {
	if !v.Valid() {
		return "<invalid>"
	}
	return string(v.typ) + ":" + v.Encode()
}

// Encode renders the payload as the single text column stored next to the
// discriminant. Floats use the shortest representation that parses back to
// the same bits.
func (v Value) Encode() string {
	switch v.typ {
	case TypeString:
		return v.s
	case TypeDatetime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	}
	return ""
}

// DecodeValue rebuilds a Value from its persisted discriminant and text.
func DecodeValue(typ, payload string) (Value, error) {
	t, err := ParseValueType(typ)
	if err != nil {
		return Value{}, err
	}

	switch t {
	case TypeString:
		return StringValue(payload), nil
	case TypeDatetime:
		ts, err := time.Parse(time.RFC3339Nano, payload)
		if err != nil {
			return Value{}, fmt.Errorf("decoding datetime %q: %w", payload, err)
		}
		return DatetimeValue(ts), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decoding float %q: %w", payload, err)
		}
		return FloatValue(f), nil
	default:
		i, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decoding int %q: %w", payload, err)
		}
		return IntValue(i), nil
	}
}

// ValidateKey checks a key-value store key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidKey, key, MaxKeyLength)
	}
	return nil
}
