package source

import (
	"github.com/saludmental/cohortload/internal/model"
	"github.com/saludmental/cohortload/internal/normalize"
)

// CoerceVisitRows coerces a consultation table into typed rows, dropping any
// row whose identifier or date does not resolve. Rows are independent; the
// result is the same regardless of processing order.
func CoerceVisitRows(t *Table, cols Columns) []model.VisitRow {
	out := make([]model.VisitRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		historia := t.cell(row, col(cols, FieldID)).AsText()
		date := t.cell(row, col(cols, FieldDate)).AsDate()
		if historia == "" || date == nil {
			continue
		}

		v := model.VisitRow{Historia: historia, Date: *date}
		if i, ok := cols[FieldNarrative]; ok {
			if txt := t.cell(row, i).AsText(); txt != "" {
				v.Narrative = &txt
			}
		}
		if i, ok := cols[FieldRisk]; ok {
			v.Risk = normalize.RiskFrom(t.cell(row, i).AsText())
		}
		if i, ok := cols[FieldSex]; ok {
			v.RawSex = t.cell(row, i).AsText()
		}
		out = append(out, v)
	}
	return out
}

// CoerceMedRows coerces a medication table, additionally requiring a
// non-empty medication name.
func CoerceMedRows(t *Table, cols Columns) []model.MedRow {
	out := make([]model.MedRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		historia := t.cell(row, col(cols, FieldID)).AsText()
		date := t.cell(row, col(cols, FieldDate)).AsDate()
		name := t.cell(row, col(cols, FieldMed)).AsText()
		if historia == "" || date == nil || name == "" {
			continue
		}

		m := model.MedRow{Historia: historia, Date: *date, Name: name}
		if i, ok := cols[FieldDose]; ok {
			m.Dose = t.cell(row, i).AsText()
		}
		if i, ok := cols[FieldRegimen]; ok {
			m.Regimen = t.cell(row, i).AsText()
		}
		if i, ok := cols[FieldRisk]; ok {
			m.Risk = normalize.RiskFrom(t.cell(row, i).AsText())
		}
		out = append(out, m)
	}
	return out
}

func col(cols Columns, f Field) int {
	if i, ok := cols[f]; ok {
		return i
	}
	return -1
}
