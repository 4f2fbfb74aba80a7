package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/saludmental/cohortload/internal/normalize"
)

// Field is a logical column the pipeline cares about, independent of the
// physical header a given export uses for it.
type Field string

const (
	FieldID        Field = "id"
	FieldDate      Field = "fecha"
	FieldNarrative Field = "relato"
	FieldRisk      Field = "riesgo"
	FieldMed       Field = "med"
	FieldDose      Field = "dosis"
	FieldRegimen   Field = "esquema"
	FieldSex       Field = "sexo"
)

// ColumnDefaults maps each logical field to the physical header it resolves
// to when a source does not override it.
type ColumnDefaults map[Field]string

// DefaultColumns returns the shared fallback header names.
func DefaultColumns() ColumnDefaults {
	return ColumnDefaults{
		FieldID:        "id_paciente",
		FieldDate:      "fecha_consulta",
		FieldNarrative: "relato_consulta",
		FieldRisk:      "riesgo",
		FieldMed:       "med",
		FieldDose:      "dosis",
		FieldRegimen:   "esquema",
		FieldSex:       "sexo",
	}
}

// SchemaMismatchError reports every required field whose resolved header is
// absent from the source, not just the first, so one failure carries the
// complete diagnostic.
type SchemaMismatchError struct {
	Source  string
	Missing []string
	Headers []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: missing required columns [%s] (headers: %s)",
		e.Source, strings.Join(e.Missing, ", "), strings.Join(e.Headers, ", "))
}

// Columns is the result of resolution: logical field → column index in the
// table. Optional fields that did not resolve are simply absent.
type Columns map[Field]int

// Resolve maps logical fields onto the table's columns. For each field the
// per-source override wins over the shared default; both are normalized
// before matching. Required fields that fail to resolve are collected into a
// single *SchemaMismatchError. No side effects.
func Resolve(t *Table, defaults ColumnDefaults, overrides map[Field]string, required, optional []Field) (Columns, error) {
	idx := make(map[string]int, len(t.Headers))
	for i, h := range t.Headers {
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}

	resolve := func(f Field) (int, bool) {
		name := overrides[f]
		if name == "" {
			name = defaults[f]
		}
		i, ok := idx[normalize.Text(name)]
		return i, ok
	}

	cols := make(Columns, len(required)+len(optional))
	var missing []string
	for _, f := range required {
		i, ok := resolve(f)
		if !ok {
			missing = append(missing, string(f))
			continue
		}
		cols[f] = i
	}
	for _, f := range optional {
		if i, ok := resolve(f); ok {
			cols[f] = i
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &SchemaMismatchError{Source: t.Source, Missing: missing, Headers: t.Headers}
	}
	return cols, nil
}
