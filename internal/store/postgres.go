package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saludmental/cohortload/internal/model"
	embedsql "github.com/saludmental/cohortload/internal/sql"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// The loader runs the whole reconciliation on a single transaction; the API
// reads straight off the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store and Reader over a pgx Querier.
type Postgres struct {
	db Querier
}

func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Reset(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, embedsql.ResetTables); err != nil {
		return fmt.Errorf("reset tables: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertPatient(ctx context.Context, historia string) (bool, error) {
	tag, err := p.db.Exec(ctx, embedsql.UpsertPatient, historia)
	if err != nil {
		return false, fmt.Errorf("upsert patient %s: %w", historia, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) SetCohortFlag(ctx context.Context, historia string, flag model.CohortFlag) error {
	if _, err := p.db.Exec(ctx, embedsql.SetCohortFlag, historia, string(flag)); err != nil {
		return fmt.Errorf("set %s for %s: %w", flag, historia, err)
	}
	return nil
}

func (p *Postgres) FindPatientID(ctx context.Context, historia string) (int64, bool, error) {
	var id int64
	err := p.db.QueryRow(ctx, embedsql.FindPatientID, historia).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find patient %s: %w", historia, err)
	}
	return id, true, nil
}

func (p *Postgres) InsertVisit(ctx context.Context, v NewVisit) (int64, bool, error) {
	var id int64
	err := p.db.QueryRow(ctx, embedsql.InsertVisit,
		v.PatientID, v.Date, v.Narrative, v.Diagnosis, string(v.Risk)).Scan(&id)
	if err == pgx.ErrNoRows {
		// ON CONFLICT DO NOTHING returned no row: the (patient, date) slot
		// is already taken.
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert visit patient=%d date=%s: %w",
			v.PatientID, v.Date.Format("2006-01-02"), err)
	}
	return id, false, nil
}

func (p *Postgres) FindCanonicalVisit(ctx context.Context, patientID int64, date time.Time) (int64, bool, error) {
	var id int64
	err := p.db.QueryRow(ctx, embedsql.FindCanonicalVisit, patientID, date).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find canonical visit patient=%d: %w", patientID, err)
	}
	return id, true, nil
}

func (p *Postgres) InsertPrescription(ctx context.Context, visitID int64, name, dose, regimen string) (bool, error) {
	tag, err := p.db.Exec(ctx, embedsql.InsertPrescription, visitID, name, dose, regimen)
	if err != nil {
		return false, fmt.Errorf("insert prescription visit=%d med=%s: %w", visitID, name, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) UpdateVisitRiskIfUnset(ctx context.Context, historia string, date time.Time, risk model.Risk) (int64, error) {
	tag, err := p.db.Exec(ctx, embedsql.UpdateVisitRiskIfUnset, string(risk), historia, date)
	if err != nil {
		return 0, fmt.Errorf("update risk %s %s: %w", historia, date.Format("2006-01-02"), err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) UpdatePatientSexIfUndefined(ctx context.Context, historia string, sex model.Sex) (int64, error) {
	tag, err := p.db.Exec(ctx, embedsql.UpdatePatientSexIfUndefined, string(sex), historia)
	if err != nil {
		return 0, fmt.Errorf("update sex %s: %w", historia, err)
	}
	return tag.RowsAffected(), nil
}

// ---------- Reader ----------

func (p *Postgres) PatientExists(ctx context.Context, patientID int64) (bool, error) {
	var exists bool
	if err := p.db.QueryRow(ctx, embedsql.PatientExists, patientID).Scan(&exists); err != nil {
		return false, fmt.Errorf("patient exists %d: %w", patientID, err)
	}
	return exists, nil
}

func (p *Postgres) VisitsBetween(ctx context.Context, patientID int64, from, to *time.Time) ([]model.Visit, error) {
	rows, err := p.db.Query(ctx, embedsql.VisitsBetween, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("visits for patient %d: %w", patientID, err)
	}
	defer rows.Close()

	var out []model.Visit
	for rows.Next() {
		var v model.Visit
		var risk string
		if err := rows.Scan(&v.ID, &v.PatientID, &v.Date, &v.Diagnosis, &risk, &v.Ordinal); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.Risk = model.Risk(risk)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) MedicationsForVisits(ctx context.Context, visitIDs []int64, nameLike string) (map[int64][]model.Medication, error) {
	out := make(map[int64][]model.Medication)
	if len(visitIDs) == 0 {
		return out, nil
	}
	rows, err := p.db.Query(ctx, embedsql.MedsForVisits, visitIDs, nameLike)
	if err != nil {
		return nil, fmt.Errorf("medications for visits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m model.Medication
		if err := rows.Scan(&m.VisitID, &m.Name, &m.Dose, &m.Regimen); err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		out[m.VisitID] = append(out[m.VisitID], m)
	}
	return out, rows.Err()
}

func (p *Postgres) DashboardSummary(ctx context.Context) (*model.DashboardSummary, error) {
	s := &model.DashboardSummary{SexCounts: map[string]int64{}}

	err := p.db.QueryRow(ctx, embedsql.DashboardCounts).
		Scan(&s.Patients, &s.Visits, &s.AnxietyPatients, &s.DepressionCount)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}

	rows, err := p.db.Query(ctx, embedsql.DashboardSexCounts)
	if err != nil {
		return nil, fmt.Errorf("dashboard sex counts: %w", err)
	}
	for rows.Next() {
		var sex string
		var n int64
		if err := rows.Scan(&sex, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sex count: %w", err)
		}
		s.SexCounts[sex] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = p.db.Query(ctx, embedsql.DashboardTopDiagnoses)
	if err != nil {
		return nil, fmt.Errorf("dashboard diagnoses: %w", err)
	}
	for rows.Next() {
		var d model.DiagnosisCount
		if err := rows.Scan(&d.Diagnosis, &d.Total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan diagnosis count: %w", err)
		}
		s.TopDiagnoses = append(s.TopDiagnoses, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = p.db.Query(ctx, embedsql.DashboardMedications)
	if err != nil {
		return nil, fmt.Errorf("dashboard medications: %w", err)
	}
	for rows.Next() {
		var med string
		if err := rows.Scan(&med); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan medication name: %w", err)
		}
		s.Medications = append(s.Medications, med)
	}
	rows.Close()
	return s, rows.Err()
}

// Compile-time interface checks.
var (
	_ Store  = (*Postgres)(nil)
	_ Reader = (*Postgres)(nil)
)
