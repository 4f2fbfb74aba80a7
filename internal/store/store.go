// Package store is the persistence contract the pipeline runs against.
// The reconciliation engine, the repair passes, and the evolution reader all
// take an explicit store handle; nothing holds a global connection.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/saludmental/cohortload/internal/model"
)

// ErrPatientNotFound is returned by read paths when an id resolves to no
// stored patient. The API layer maps it to a 404.
var ErrPatientNotFound = errors.New("paciente no encontrado")

// NewVisit carries the fields of a visit insert attempt. Risk may be unknown
// and Narrative nil; the uniqueness constraint is (patient, date).
type NewVisit struct {
	PatientID int64
	Date      time.Time
	Narrative *string
	Diagnosis string
	Risk      model.Risk
}

// Store is the write side consumed by the reconciliation engine and the
// repair passes. Implementations must make every operation idempotent under
// the documented conflict rules.
type Store interface {
	// Reset truncates prescriptions, visits, and patients (cascading) and
	// restarts identity sequences.
	Reset(ctx context.Context) error

	// UpsertPatient inserts a patient with default sex Otro and both cohort
	// flags false, keyed on the natural identifier. A conflict is a no-op,
	// never an update; created reports whether a row was inserted.
	UpsertPatient(ctx context.Context, historia string) (created bool, err error)

	// SetCohortFlag monotonically sets one cohort flag. Never clears.
	SetCohortFlag(ctx context.Context, historia string, flag model.CohortFlag) error

	// FindPatientID resolves the surrogate id for a natural identifier.
	FindPatientID(ctx context.Context, historia string) (id int64, ok bool, err error)

	// InsertVisit attempts an insert under the (patient, date) uniqueness
	// constraint. On conflict it reports conflict=true with id undefined.
	InsertVisit(ctx context.Context, v NewVisit) (id int64, conflict bool, err error)

	// FindCanonicalVisit returns the canonical visit for (patient, date):
	// lowest ordinal with NULLs first, then lowest id.
	FindCanonicalVisit(ctx context.Context, patientID int64, date time.Time) (id int64, ok bool, err error)

	// InsertPrescription deduplicates on (visit, name, dose, regimen);
	// an identical tuple is a silent no-op.
	InsertPrescription(ctx context.Context, visitID int64, name, dose, regimen string) (inserted bool, err error)

	// UpdateVisitRiskIfUnset backfills nivel_riesgo on the depression visit
	// matching (historia, date) only when it is currently NULL/empty.
	UpdateVisitRiskIfUnset(ctx context.Context, historia string, date time.Time, risk model.Risk) (rowsAffected int64, err error)

	// UpdatePatientSexIfUndefined overwrites sexo only when the stored value
	// is not one of the two definite categories.
	UpdatePatientSexIfUndefined(ctx context.Context, historia string, sex model.Sex) (rowsAffected int64, err error)
}

// Reader is the read side consumed by the evolution calculator and the
// dashboard. Safe for concurrent use across patients.
type Reader interface {
	PatientExists(ctx context.Context, patientID int64) (bool, error)
	VisitsBetween(ctx context.Context, patientID int64, from, to *time.Time) ([]model.Visit, error)
	// MedicationsForVisits returns prescriptions grouped by visit id,
	// optionally filtered by a case-insensitive name substring.
	MedicationsForVisits(ctx context.Context, visitIDs []int64, nameLike string) (map[int64][]model.Medication, error)
	DashboardSummary(ctx context.Context) (*model.DashboardSummary, error)
}
