package model

import "time"

// VisitRow is a coerced consultation-source row. Rows missing the identifier
// or the date never make it this far.
type VisitRow struct {
	Historia  string
	Date      time.Time
	Narrative *string
	Risk      Risk
	// RawSex carries the source's sex cell untouched; only the repair pass
	// interprets it. Empty when the source has no sex column.
	RawSex string
}

// MedRow is a coerced medication-source row. Name is always non-empty;
// Dose and Regimen use "" for absent.
type MedRow struct {
	Historia string
	Date     time.Time
	Name     string
	Dose     string
	Regimen  string
	// Risk is the mapped risk cell from the meds export, consumed by the
	// risk repair pass. Unknown when the column is absent or unmapped.
	Risk Risk
}

// Visit is a stored consultation as read back for the evolution series.
type Visit struct {
	ID        int64
	PatientID int64
	Date      time.Time
	Diagnosis string
	Risk      Risk
	// Ordinal disambiguates multiple same-day visits; nil when unset.
	Ordinal *int32
}

// Medication is a stored prescription line attached to a visit.
type Medication struct {
	VisitID int64
	Name    string
	Dose    string
	Regimen string
}
