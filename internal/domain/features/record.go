package features

import (
	"strconv"
	"strings"
)

// Record is one row of model input: a value for every Schema field, in order.
// It is built per request and never mutated after Parse returns it.
type Record struct {
	values    [Size]float64
	defaulted [Size]bool
}

// NewRecord builds a record from values in Schema order.
func NewRecord(values [Size]float64) Record {
	return Record{values: values}
}

// FromMap builds a record from name->value pairs. Missing names take the
// field default; unknown names are ignored.
func FromMap(m map[string]float64) Record {
	var r Record
	for i, f := range Schema {
		v, ok := m[f.Name]
		if !ok {
			v = f.Default
			r.defaulted[i] = true
		}
		r.values[i] = v
	}
	return r
}

// Get returns the value of the named field.
func (r Record) Get(name string) (float64, bool) {
	i, ok := index[name]
	if !ok {
		return 0, false
	}
	return r.values[i], true
}

// At returns the value in column i.
func (r Record) At(i int) float64 {
	return r.values[i]
}

// Values returns a copy of the values in Schema order.
func (r Record) Values() []float64 {
	out := make([]float64, Size)
	copy(out, r.values[:])
	return out
}

// Map returns the record as name->value pairs.
func (r Record) Map() map[string]float64 {
	m := make(map[string]float64, Size)
	for i, f := range Schema {
		m[f.Name] = r.values[i]
	}
	return m
}

// Defaulted returns the names of fields that fell back to their default.
func (r Record) Defaulted() []string {
	var names []string
	for i, d := range r.defaulted {
		if d {
			names = append(names, Schema[i].Name)
		}
	}
	return names
}

// Key is a canonical string for the record values, stable across calls.
func (r Record) Key() string {
	var b strings.Builder
	for i, v := range r.values {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// String renders the record as "name=value" pairs for logs.
func (r Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range Schema {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(r.values[i], 'g', -1, 64))
	}
	b.WriteByte('}')
	return b.String()
}
