package reconcile

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/saludmental/cohortload/internal/model"
	"github.com/saludmental/cohortload/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

type sidecarBufs struct {
	mapping bytes.Buffer
	log     bytes.Buffer
}

func newTestSidecar(t *testing.T) (*Sidecar, *sidecarBufs) {
	t.Helper()
	bufs := &sidecarBufs{}
	sc, err := NewSidecar(&bufs.mapping, &bufs.log)
	if err != nil {
		t.Fatalf("NewSidecar: %v", err)
	}
	return sc, bufs
}

func runEngine(t *testing.T, st store.Store, src Sources, reset bool) (*model.LoadSummary, *sidecarBufs) {
	t.Helper()
	sc, bufs := newTestSidecar(t)
	sum, err := Run(context.Background(), st, sc, zerolog.Nop(), src, reset)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return sum, bufs
}

func TestRun_VisitAndMedShareOneVisit(t *testing.T) {
	mem := store.NewMemory()
	src := Sources{
		DepVisits: []model.VisitRow{{
			Historia:  "123",
			Date:      day(2021, time.January, 1),
			Narrative: strPtr("primera consulta"),
			Risk:      model.RiskModerate,
		}},
		DepMeds: []model.MedRow{{
			Historia: "123",
			Date:     day(2021, time.January, 1),
			Name:     "Sertralina",
			Dose:     "50mg",
		}},
	}

	sum, bufs := runEngine(t, mem, src, false)

	patients, visits, prescs := mem.Counts()
	if patients != 1 || visits != 1 || prescs != 1 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/1", patients, visits, prescs)
	}
	if sum.DepVisitsLoaded != 1 || sum.MedsInserted != 1 || sum.MedVisitsCreated != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	// Mapping must hold exactly one data row for ("123", 2021-01-01).
	lines := strings.Split(strings.TrimSpace(bufs.mapping.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("mapping rows = %d, want header + 1: %q", len(lines), bufs.mapping.String())
	}
	if !strings.HasPrefix(lines[1], "123,2021-01-01,") {
		t.Errorf("unexpected mapping row: %q", lines[1])
	}
}

func TestRun_MedWithoutVisitCreatesMinimalVisit(t *testing.T) {
	mem := store.NewMemory()
	src := Sources{
		DepMeds: []model.MedRow{{
			Historia: "77",
			Date:     day(2021, time.March, 5),
			Name:     "Fluoxetina",
		}},
	}

	sum, bufs := runEngine(t, mem, src, false)

	if sum.MedVisitsCreated != 1 || sum.MedsInserted != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if !strings.Contains(bufs.mapping.String(), "77,2021-03-05,") {
		t.Errorf("minimal visit missing from mapping: %q", bufs.mapping.String())
	}

	pid, ok, _ := mem.FindPatientID(context.Background(), "77")
	if !ok {
		t.Fatal("patient 77 not created")
	}
	visits, err := mem.VisitsBetween(context.Background(), pid, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(visits) != 1 || visits[0].Diagnosis != model.DiagnosisDepression {
		t.Errorf("unexpected visits: %+v", visits)
	}
	if visits[0].Risk != model.RiskUnknown {
		t.Errorf("minimal visit risk = %q, want unknown", visits[0].Risk)
	}
}

func TestRun_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	src := Sources{
		DepVisits: []model.VisitRow{
			{Historia: "1", Date: day(2021, time.January, 1), Risk: model.RiskLow},
			{Historia: "1", Date: day(2021, time.February, 1), Risk: model.RiskHigh},
		},
		DepMeds: []model.MedRow{
			{Historia: "1", Date: day(2021, time.January, 1), Name: "Sertralina", Dose: "50mg"},
		},
		AnxVisits: []model.VisitRow{
			{Historia: "2", Date: day(2021, time.January, 10)},
		},
	}

	runEngine(t, mem, src, false)
	p1, v1, m1 := mem.Counts()

	sum2, _ := runEngine(t, mem, src, false)
	p2, v2, m2 := mem.Counts()

	if p1 != p2 || v1 != v2 || m1 != m2 {
		t.Errorf("second run changed counts: %d/%d/%d → %d/%d/%d", p1, v1, m1, p2, v2, m2)
	}
	if sum2.PatientsCreated != 0 || sum2.MedsInserted != 0 || sum2.MedVisitsCreated != 0 {
		t.Errorf("second run created rows: %+v", sum2)
	}
}

func TestRun_DuplicateVisitRowsReuseCanonical(t *testing.T) {
	mem := store.NewMemory()
	src := Sources{
		DepVisits: []model.VisitRow{
			{Historia: "9", Date: day(2021, time.May, 1), Narrative: strPtr("a")},
			{Historia: "9", Date: day(2021, time.May, 1), Narrative: strPtr("b")},
		},
	}

	sum, bufs := runEngine(t, mem, src, false)

	_, visits, _ := mem.Counts()
	if visits != 1 {
		t.Fatalf("visits = %d, want 1", visits)
	}
	// Both rows map to the same canonical visit id.
	if sum.DepVisitsLoaded != 2 {
		t.Errorf("DepVisitsLoaded = %d, want 2", sum.DepVisitsLoaded)
	}
	lines := strings.Split(strings.TrimSpace(bufs.mapping.String()), "\n")
	if len(lines) != 3 || lines[1] != lines[2] {
		t.Errorf("expected two identical mapping rows, got %v", lines[1:])
	}
}

func TestRun_AnxietyOnlyPatientFlags(t *testing.T) {
	mem := store.NewMemory()
	src := Sources{
		AnxVisits: []model.VisitRow{
			{Historia: "555", Date: day(2021, time.June, 1)},
		},
	}

	runEngine(t, mem, src, false)

	sex, dep, anx, ok := mem.PatientState("555")
	if !ok {
		t.Fatal("patient 555 not created")
	}
	if sex != model.SexOther {
		t.Errorf("sex = %q, want Otro", sex)
	}
	if dep || !anx {
		t.Errorf("flags = dep=%v anx=%v, want dep=false anx=true", dep, anx)
	}
}

func TestRun_CohortFlagsMonotonic(t *testing.T) {
	mem := store.NewMemory()
	runEngine(t, mem, Sources{
		DepVisits: []model.VisitRow{{Historia: "7", Date: day(2021, time.January, 1)}},
	}, false)

	// Later run with disjoint anxiety data must not clear id_depresion.
	runEngine(t, mem, Sources{
		AnxVisits: []model.VisitRow{{Historia: "7", Date: day(2021, time.February, 1)}},
	}, false)

	_, dep, anx, _ := mem.PatientState("7")
	if !dep || !anx {
		t.Errorf("flags = dep=%v anx=%v, want both true", dep, anx)
	}
}

func TestRun_ResetClearsStore(t *testing.T) {
	mem := store.NewMemory()
	runEngine(t, mem, Sources{
		DepVisits: []model.VisitRow{{Historia: "1", Date: day(2021, time.January, 1)}},
	}, false)

	runEngine(t, mem, Sources{
		DepVisits: []model.VisitRow{{Historia: "2", Date: day(2021, time.January, 2)}},
	}, true)

	if _, _, _, ok := mem.PatientState("1"); ok {
		t.Error("patient 1 survived reset")
	}
	patients, visits, _ := mem.Counts()
	if patients != 1 || visits != 1 {
		t.Errorf("counts after reset = %d/%d, want 1/1", patients, visits)
	}
}

func TestRun_AnxietySameDayConflictIsSilent(t *testing.T) {
	mem := store.NewMemory()
	sum, bufs := runEngine(t, mem, Sources{
		DepVisits: []model.VisitRow{{Historia: "3", Date: day(2021, time.April, 1)}},
		AnxVisits: []model.VisitRow{{Historia: "3", Date: day(2021, time.April, 1)}},
	}, false)

	_, visits, _ := mem.Counts()
	if visits != 1 {
		t.Fatalf("visits = %d, want 1", visits)
	}
	if sum.AnxVisitsLoaded != 0 || sum.AnxVisitsSkipped != 1 {
		t.Errorf("anxiety counts = %+v", sum)
	}
	if strings.Contains(bufs.log.String(), ReasonVisitNotLoaded) {
		t.Errorf("anxiety conflict must not be logged: %q", bufs.log.String())
	}
}
