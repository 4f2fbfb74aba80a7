package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/saludmental/cohortload/internal/model"
)

// Memory is an in-memory Store/Reader with the same conflict semantics as
// the Postgres implementation. It backs --dry-run loads and the unit tests;
// it is not meant to survive the process.
type Memory struct {
	mu sync.Mutex

	nextPatientID int64
	nextVisitID   int64

	patients map[string]*memPatient // keyed by numero_historia
	visits   []*memVisit
	prescs   []memPresc
}

type memPatient struct {
	id         int64
	historia   string
	sex        model.Sex
	depression bool
	anxiety    bool
}

type memVisit struct {
	id        int64
	patientID int64
	date      time.Time
	narrative *string
	diagnosis string
	risk      model.Risk
	ordinal   *int32
}

type memPresc struct {
	visitID int64
	name    string
	dose    string
	regimen string
}

func NewMemory() *Memory {
	return &Memory{
		nextPatientID: 1,
		nextVisitID:   1,
		patients:      make(map[string]*memPatient),
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients = make(map[string]*memPatient)
	m.visits = nil
	m.prescs = nil
	m.nextPatientID = 1
	m.nextVisitID = 1
	return nil
}

func (m *Memory) UpsertPatient(ctx context.Context, historia string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[historia]; ok {
		return false, nil
	}
	m.patients[historia] = &memPatient{id: m.nextPatientID, historia: historia, sex: model.SexOther}
	m.nextPatientID++
	return true, nil
}

func (m *Memory) SetCohortFlag(ctx context.Context, historia string, flag model.CohortFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[historia]
	if !ok {
		return nil
	}
	switch flag {
	case model.FlagDepression:
		p.depression = true
	case model.FlagAnxiety:
		p.anxiety = true
	}
	return nil
}

func (m *Memory) FindPatientID(ctx context.Context, historia string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.patients[historia]; ok {
		return p.id, true, nil
	}
	return 0, false, nil
}

func (m *Memory) InsertVisit(ctx context.Context, v NewVisit) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.visits {
		if ex.patientID == v.PatientID && sameDay(ex.date, v.Date) {
			return 0, true, nil
		}
	}
	id := m.nextVisitID
	m.nextVisitID++
	m.visits = append(m.visits, &memVisit{
		id:        id,
		patientID: v.PatientID,
		date:      v.Date,
		narrative: v.Narrative,
		diagnosis: v.Diagnosis,
		risk:      v.Risk,
	})
	return id, false, nil
}

func (m *Memory) FindCanonicalVisit(ctx context.Context, patientID int64, date time.Time) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*memVisit
	for _, v := range m.visits {
		if v.patientID == patientID && sameDay(v.date, date) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.ordinal == nil && b.ordinal != nil:
			return true
		case a.ordinal != nil && b.ordinal == nil:
			return false
		case a.ordinal != nil && b.ordinal != nil && *a.ordinal != *b.ordinal:
			return *a.ordinal < *b.ordinal
		}
		return a.id < b.id
	})
	return candidates[0].id, true, nil
}

func (m *Memory) InsertPrescription(ctx context.Context, visitID int64, name, dose, regimen string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prescs {
		if p.visitID == visitID && p.name == name && p.dose == dose && p.regimen == regimen {
			return false, nil
		}
	}
	m.prescs = append(m.prescs, memPresc{visitID: visitID, name: name, dose: dose, regimen: regimen})
	return true, nil
}

func (m *Memory) UpdateVisitRiskIfUnset(ctx context.Context, historia string, date time.Time, risk model.Risk) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[historia]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, v := range m.visits {
		if v.patientID != p.id || !sameDay(v.date, date) {
			continue
		}
		if !strings.Contains(strings.ToLower(v.diagnosis), "depresi") {
			continue
		}
		if v.risk != model.RiskUnknown {
			continue
		}
		v.risk = risk
		n++
	}
	return n, nil
}

func (m *Memory) UpdatePatientSexIfUndefined(ctx context.Context, historia string, sex model.Sex) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[historia]
	if !ok || p.sex.Definite() {
		return 0, nil
	}
	p.sex = sex
	return 1, nil
}

// PatientState reports the stored sex and cohort flags for an identifier.
// Used by dry-run reporting and tests.
func (m *Memory) PatientState(historia string) (sex model.Sex, depression, anxiety, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, found := m.patients[historia]
	if !found {
		return "", false, false, false
	}
	return p.sex, p.depression, p.anxiety, true
}

// Counts reports total stored rows per table. Used by dry-run reporting and
// tests.
func (m *Memory) Counts() (patients, visits, prescriptions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patients), len(m.visits), len(m.prescs)
}

// ---------- Reader ----------

func (m *Memory) PatientExists(ctx context.Context, patientID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.id == patientID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) VisitsBetween(ctx context.Context, patientID int64, from, to *time.Time) ([]model.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Visit
	for _, v := range m.visits {
		if v.patientID != patientID {
			continue
		}
		if from != nil && v.date.Before(*from) {
			continue
		}
		if to != nil && v.date.After(*to) {
			continue
		}
		out = append(out, model.Visit{
			ID: v.id, PatientID: v.patientID, Date: v.date,
			Diagnosis: v.diagnosis, Risk: v.risk, Ordinal: v.ordinal,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		switch {
		case a.Ordinal == nil && b.Ordinal != nil:
			return true
		case a.Ordinal != nil && b.Ordinal == nil:
			return false
		case a.Ordinal != nil && b.Ordinal != nil && *a.Ordinal != *b.Ordinal:
			return *a.Ordinal < *b.Ordinal
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *Memory) MedicationsForVisits(ctx context.Context, visitIDs []int64, nameLike string) (map[int64][]model.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(visitIDs))
	for _, id := range visitIDs {
		want[id] = true
	}
	needle := strings.ToLower(nameLike)
	out := make(map[int64][]model.Medication)
	for _, p := range m.prescs {
		if !want[p.visitID] {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.name), needle) {
			continue
		}
		out[p.visitID] = append(out[p.visitID], model.Medication{
			VisitID: p.visitID, Name: p.name, Dose: p.dose, Regimen: p.regimen,
		})
	}
	return out, nil
}

func (m *Memory) DashboardSummary(ctx context.Context) (*model.DashboardSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &model.DashboardSummary{SexCounts: map[string]int64{}}
	s.Patients = int64(len(m.patients))
	s.Visits = int64(len(m.visits))
	for _, p := range m.patients {
		s.SexCounts[string(p.sex)]++
	}

	anx := map[int64]bool{}
	dep := map[int64]bool{}
	diag := map[string]int64{}
	for _, v := range m.visits {
		d := strings.ToLower(v.diagnosis)
		if strings.Contains(d, "ansiedad") {
			anx[v.patientID] = true
		}
		if strings.Contains(d, "depresi") {
			dep[v.patientID] = true
		}
		name := v.diagnosis
		if name == "" {
			name = "(sin dato)"
		}
		diag[name]++
	}
	s.AnxietyPatients = int64(len(anx))
	s.DepressionCount = int64(len(dep))

	for name, total := range diag {
		s.TopDiagnoses = append(s.TopDiagnoses, model.DiagnosisCount{Diagnosis: name, Total: total})
	}
	sort.Slice(s.TopDiagnoses, func(i, j int) bool {
		if s.TopDiagnoses[i].Total != s.TopDiagnoses[j].Total {
			return s.TopDiagnoses[i].Total > s.TopDiagnoses[j].Total
		}
		return s.TopDiagnoses[i].Diagnosis < s.TopDiagnoses[j].Diagnosis
	})
	if len(s.TopDiagnoses) > 5 {
		s.TopDiagnoses = s.TopDiagnoses[:5]
	}

	seen := map[string]bool{}
	for _, p := range m.prescs {
		n := strings.ToLower(strings.TrimSpace(p.name))
		if n != "" && !seen[n] {
			seen[n] = true
			s.Medications = append(s.Medications, n)
		}
	}
	sort.Strings(s.Medications)
	return s, nil
}

var (
	_ Store  = (*Memory)(nil)
	_ Reader = (*Memory)(nil)
)
