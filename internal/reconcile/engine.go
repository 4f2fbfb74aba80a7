// Package reconcile merges the three registry exports into the relational
// store: one pass creating patients, visits, and prescriptions under the
// uniqueness rules, plus the secondary sex/risk repair passes.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saludmental/cohortload/internal/model"
	"github.com/saludmental/cohortload/internal/store"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Sources holds the coerced rows of the three exports.
type Sources struct {
	DepVisits []model.VisitRow
	DepMeds   []model.MedRow
	AnxVisits []model.VisitRow
}

// Run executes the reconciliation: optional reset → patient upserts → cohort
// flags → depression visits → depression medications → anxiety visits.
// The caller supplies the transactional store handle; any error aborts with
// no partial writes. Row-level data problems never error: they are logged to
// the sidecar and the row is skipped.
func Run(ctx context.Context, st store.Store, sc *Sidecar, log zerolog.Logger, src Sources, resetFirst bool) (*model.LoadSummary, error) {
	start := time.Now()
	sum := &model.LoadSummary{RunID: uuid.New().String()}
	log = log.With().Str("run_id", sum.RunID).Logger()

	if resetFirst {
		log.Info().Msg("resetting patient, visit, and prescription tables")
		if err := st.Reset(ctx); err != nil {
			return nil, &PipelineError{Phase: "reset", Err: err}
		}
	}

	if err := upsertPatients(ctx, st, src, sum); err != nil {
		return nil, &PipelineError{Phase: "patients", Err: err}
	}
	log.Info().Int64("created", sum.PatientsCreated).Msg("patients upserted")

	if err := setCohortFlags(ctx, st, src); err != nil {
		return nil, &PipelineError{Phase: "cohort_flags", Err: err}
	}
	log.Info().Msg("cohort flags set")

	if err := loadDepressionVisits(ctx, st, sc, src.DepVisits, sum); err != nil {
		return nil, &PipelineError{Phase: "dep_visits", Err: err}
	}
	log.Info().
		Int64("loaded", sum.DepVisitsLoaded).
		Int64("skipped", sum.DepVisitsSkipped).
		Msg("depression visits loaded")

	if err := loadDepressionMeds(ctx, st, sc, src.DepMeds, sum); err != nil {
		return nil, &PipelineError{Phase: "dep_meds", Err: err}
	}
	log.Info().
		Int64("inserted", sum.MedsInserted).
		Int64("minimal_visits", sum.MedVisitsCreated).
		Int64("skipped", sum.MedsSkipped).
		Msg("medications loaded")

	if err := loadAnxietyVisits(ctx, st, sc, src.AnxVisits, sum); err != nil {
		return nil, &PipelineError{Phase: "anx_visits", Err: err}
	}
	log.Info().
		Int64("loaded", sum.AnxVisitsLoaded).
		Int64("skipped", sum.AnxVisitsSkipped).
		Msg("anxiety visits loaded")

	sum.DurationTotal = time.Since(start)
	return sum, nil
}

// upsertPatients inserts every distinct identifier across all three sources.
// Insert-or-ignore on the natural key: an existing patient is left untouched,
// so insertion order is irrelevant.
func upsertPatients(ctx context.Context, st store.Store, src Sources, sum *model.LoadSummary) error {
	seen := make(map[string]bool)
	upsert := func(historia string) error {
		if seen[historia] {
			return nil
		}
		seen[historia] = true
		created, err := st.UpsertPatient(ctx, historia)
		if err != nil {
			return err
		}
		if created {
			sum.PatientsCreated++
		}
		return nil
	}

	for _, r := range src.DepVisits {
		if err := upsert(r.Historia); err != nil {
			return err
		}
	}
	for _, r := range src.DepMeds {
		if err := upsert(r.Historia); err != nil {
			return err
		}
	}
	for _, r := range src.AnxVisits {
		if err := upsert(r.Historia); err != nil {
			return err
		}
	}
	return nil
}

// setCohortFlags marks id_depresion for depression-source identifiers and
// id_ansiedad for anxiety-source identifiers. Monotonic: flags are only ever
// set, never cleared.
func setCohortFlags(ctx context.Context, st store.Store, src Sources) error {
	set := func(rows []model.VisitRow, flag model.CohortFlag) error {
		done := make(map[string]bool)
		for _, r := range rows {
			if done[r.Historia] {
				continue
			}
			done[r.Historia] = true
			if err := st.SetCohortFlag(ctx, r.Historia, flag); err != nil {
				return err
			}
		}
		return nil
	}
	if err := set(src.DepVisits, model.FlagDepression); err != nil {
		return err
	}
	return set(src.AnxVisits, model.FlagAnxiety)
}

func loadDepressionVisits(ctx context.Context, st store.Store, sc *Sidecar, rows []model.VisitRow, sum *model.LoadSummary) error {
	for _, r := range rows {
		pid, ok, err := st.FindPatientID(ctx, r.Historia)
		if err != nil {
			return err
		}
		if !ok {
			if err := sc.Log(TagDepVisits, r.Historia, r.Date, ReasonNoPatient, ""); err != nil {
				return err
			}
			sum.DepVisitsSkipped++
			continue
		}

		visitID, conflict, err := st.InsertVisit(ctx, store.NewVisit{
			PatientID: pid,
			Date:      r.Date,
			Narrative: r.Narrative,
			Diagnosis: model.DiagnosisDepression,
			Risk:      r.Risk,
		})
		if err != nil {
			return err
		}
		if conflict {
			// Reuse the canonical visit for this (patient, date).
			id, found, err := st.FindCanonicalVisit(ctx, pid, r.Date)
			if err != nil {
				return err
			}
			if !found {
				if err := sc.Log(TagDepVisits, r.Historia, r.Date, ReasonVisitNotLoaded, ""); err != nil {
					return err
				}
				sum.DepVisitsSkipped++
				continue
			}
			visitID = id
		}

		if err := sc.Map(r.Historia, r.Date, visitID); err != nil {
			return err
		}
		sum.DepVisitsLoaded++
	}
	return nil
}

func loadDepressionMeds(ctx context.Context, st store.Store, sc *Sidecar, rows []model.MedRow, sum *model.LoadSummary) error {
	for _, r := range rows {
		pid, ok, err := st.FindPatientID(ctx, r.Historia)
		if err != nil {
			return err
		}
		if !ok {
			if err := sc.Log(TagDepMeds, r.Historia, r.Date, ReasonNoPatient, r.Name); err != nil {
				return err
			}
			sum.MedsSkipped++
			continue
		}

		visitID, found, err := st.FindCanonicalVisit(ctx, pid, r.Date)
		if err != nil {
			return err
		}
		if !found {
			// No visit exists for this (patient, date): create a minimal
			// depression visit to anchor the prescription.
			id, conflict, err := st.InsertVisit(ctx, store.NewVisit{
				PatientID: pid,
				Date:      r.Date,
				Diagnosis: model.DiagnosisDepression,
			})
			if err != nil {
				return err
			}
			if conflict {
				if id, found, err = st.FindCanonicalVisit(ctx, pid, r.Date); err != nil {
					return err
				} else if !found {
					if err := sc.Log(TagDepMeds, r.Historia, r.Date, ReasonVisitNotLoaded, r.Name); err != nil {
						return err
					}
					sum.MedsSkipped++
					continue
				}
			} else {
				sum.MedVisitsCreated++
				if err := sc.Map(r.Historia, r.Date, id); err != nil {
					return err
				}
			}
			visitID = id
		}

		inserted, err := st.InsertPrescription(ctx, visitID, r.Name, r.Dose, r.Regimen)
		if err != nil {
			return err
		}
		if inserted {
			sum.MedsInserted++
		}
	}
	return nil
}

func loadAnxietyVisits(ctx context.Context, st store.Store, sc *Sidecar, rows []model.VisitRow, sum *model.LoadSummary) error {
	for _, r := range rows {
		pid, ok, err := st.FindPatientID(ctx, r.Historia)
		if err != nil {
			return err
		}
		if !ok {
			if err := sc.Log(TagAnxVisits, r.Historia, r.Date, ReasonNoPatient, ""); err != nil {
				return err
			}
			sum.AnxVisitsSkipped++
			continue
		}

		// Conflicts are a silent no-op for this source: no reuse lookup and
		// no mapping row.
		_, conflict, err := st.InsertVisit(ctx, store.NewVisit{
			PatientID: pid,
			Date:      r.Date,
			Narrative: r.Narrative,
			Diagnosis: model.DiagnosisAnxiety,
			Risk:      r.Risk,
		})
		if err != nil {
			return err
		}
		if conflict {
			sum.AnxVisitsSkipped++
			continue
		}
		sum.AnxVisitsLoaded++
	}
	return nil
}
