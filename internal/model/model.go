// Package model holds the domain types shared across the loader, the repair
// passes, and the evolution read path.
package model

// Sex is the stored patient sex category. The store keeps the Spanish
// vocabulary used by the registry exports.
type Sex string

const (
	SexFemale Sex = "Femenino"
	SexMale   Sex = "Masculino"
	SexOther  Sex = "Otro"
)

// Definite reports whether s is one of the two resolved categories. The sex
// repair pass only overwrites values that are not definite.
func (s Sex) Definite() bool {
	return s == SexFemale || s == SexMale
}

// Risk is the categorical visit risk level. The zero value means unknown:
// a risk that never resolved stays unknown rather than defaulting.
type Risk string

const (
	RiskUnknown  Risk = ""
	RiskLow      Risk = "Bajo"
	RiskModerate Risk = "Moderado"
	RiskHigh     Risk = "Alto"
)

// Level maps the category to its numeric series value (0/1/2).
// ok is false for RiskUnknown.
func (r Risk) Level() (level int, ok bool) {
	switch r {
	case RiskLow:
		return 0, true
	case RiskModerate:
		return 1, true
	case RiskHigh:
		return 2, true
	}
	return 0, false
}

// Priority orders candidates when several risks compete for the same
// (patient, date): Alto beats Moderado beats Bajo.
func (r Risk) Priority() int {
	lvl, ok := r.Level()
	if !ok {
		return -1
	}
	return lvl
}

// CohortFlag names a monotonic patient flag column. Once set, a flag is
// never cleared by any later load.
type CohortFlag string

const (
	FlagDepression CohortFlag = "id_depresion"
	FlagAnxiety    CohortFlag = "id_ansiedad"
)

// Diagnosis values written by the loader.
const (
	DiagnosisDepression = "depresion"
	DiagnosisAnxiety    = "ansiedad-panico"
)
