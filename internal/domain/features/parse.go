package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNonFinite rejects inf and nan inputs; the model cannot use them.
var ErrNonFinite = errors.New("value is not a finite number")

// ParseError reports a field whose raw value could not be coerced.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not convert %q value %q to float", e.Field, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Source is anything that yields a raw string per key, such as url.Values.
// Absent keys return "".
type Source interface {
	Get(key string) string
}

// StringMap adapts a plain map to Source.
type StringMap map[string]string

// Get returns the value for key, or "" when absent.
func (m StringMap) Get(key string) string { return m[key] }

// Coerce applies the field rules to one raw value: surrounding whitespace is
// trimmed, empty and "nil" (any case) yield def, anything else must parse
// as a finite float. defaulted reports whether def was used.
func Coerce(raw string, def float64) (value float64, defaulted bool, err error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, NilSentinel) {
		return def, true, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false, ErrNonFinite
	}
	return v, false, nil
}

// Parse builds a Record from src, walking Schema in order. Keys outside the
// schema are never read. The first field that fails to coerce aborts the
// whole record with a *ParseError.
func Parse(src Source) (Record, error) {
	var r Record
	for i, f := range Schema {
		raw := src.Get(f.Name)
		v, defaulted, err := Coerce(raw, f.Default)
		if err != nil {
			return Record{}, &ParseError{Field: f.Name, Value: raw, Err: err}
		}
		r.values[i] = v
		r.defaulted[i] = defaulted
	}
	return r, nil
}
