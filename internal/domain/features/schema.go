// Package features defines the blast-design feature record consumed by the
// PPV model and the coercion rules that build it from raw form input.
package features

// Field describes one model input.
type Field struct {
	// Name is the exact form key and model column name.
	Name string
	// Label is a human readable caption for forms and docs.
	Label string
	// Unit of measure, empty when dimensionless.
	Unit string
	// Default replaces missing, empty and nil values.
	Default float64
}

// Schema lists every model input in column order. Names are matched
// case- and whitespace-sensitively.
var Schema = [Size]Field{
	{Name: "Hole (Nos)", Label: "Number of holes", Unit: "nos"},
	{Name: "Depth (m)", Label: "Hole depth", Unit: "m"},
	{Name: "Spacing(m)", Label: "Spacing", Unit: "m"},
	{Name: "Burden (m)", Label: "Burden", Unit: "m"},
	{Name: "Stemming(m)", Label: "Stemming", Unit: "m"},
	{Name: "Decking(m)", Label: "Decking", Unit: "m"},
	{Name: "Total Drill (RMT)", Label: "Total drilling", Unit: "RMT"},
	{Name: "Explosive(kg)", Label: "Explosive charge", Unit: "kg"},
	{Name: "Volume(m3)", Label: "Blasted volume", Unit: "m3"},
	{Name: "Powder Factor(kg/m3)", Label: "Powder factor", Unit: "kg/m3"},
	{Name: "Av. CPH", Label: "Average charge per hole", Unit: "kg"},
	{Name: "MCPD (kg/D)", Label: "Maximum charge per delay", Unit: "kg/D"},
	{Name: "Seis. Dist. (m)", Label: "Seismograph distance", Unit: "m"},
}

// Size is the number of model inputs.
const Size = 13

// NilSentinel is the placeholder operators type for "not applicable".
const NilSentinel = "nil"

var index = func() map[string]int {
	m := make(map[string]int, Size)
	for i, f := range Schema {
		m[f.Name] = i
	}
	return m
}()

// Names returns the field names in column order.
func Names() []string {
	names := make([]string, Size)
	for i, f := range Schema {
		names[i] = f.Name
	}
	return names
}

// Index returns the column of the named field.
func Index(name string) (int, bool) {
	i, ok := index[name]
	return i, ok
}

// Lookup returns the field with the given name.
func Lookup(name string) (Field, bool) {
	i, ok := index[name]
	if !ok {
		return Field{}, false
	}
	return Schema[i], true
}
