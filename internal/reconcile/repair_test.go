package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/saludmental/cohortload/internal/model"
	"github.com/saludmental/cohortload/internal/source"
	"github.com/saludmental/cohortload/internal/store"
)

func text(s string) source.Cell { return source.Cell{Kind: source.CellText, Text: s} }
func missing() source.Cell      { return source.Cell{Kind: source.CellMissing} }

func sexTable(tag string, rows ...[2]string) *source.Table {
	t := &source.Table{Source: tag, Headers: []string{"id", "sexo"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []source.Cell{text(r[0]), text(r[1])})
	}
	return t
}

var sexCols = source.Columns{source.FieldID: 0, source.FieldSex: 1}

func TestRepairSex_DepressionPriority(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	mem.UpsertPatient(ctx, "1")
	mem.UpsertPatient(ctx, "2")

	dep := sexTable("dep_cons", [2]string{"1", "Femenino"})
	anx := sexTable("ans_cons", [2]string{"1", "Masculino"}, [2]string{"2", "masc"})

	sum, err := RepairSex(ctx, mem, zerolog.Nop(), dep, anx, sexCols, sexCols)
	if err != nil {
		t.Fatalf("RepairSex: %v", err)
	}
	if sum.SexCandidates != 2 || sum.SexUpdated != 2 {
		t.Errorf("summary = %+v", sum)
	}

	if sex, _, _, _ := mem.PatientState("1"); sex != model.SexFemale {
		t.Errorf("patient 1 sex = %q, want Femenino (depression source wins)", sex)
	}
	if sex, _, _, _ := mem.PatientState("2"); sex != model.SexMale {
		t.Errorf("patient 2 sex = %q, want Masculino (anxiety fills gaps)", sex)
	}
}

func TestRepairSex_NeverOverwritesDefinite(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	mem.UpsertPatient(ctx, "1")
	if _, err := mem.UpdatePatientSexIfUndefined(ctx, "1", model.SexFemale); err != nil {
		t.Fatal(err)
	}

	dep := sexTable("dep_cons", [2]string{"1", "Masculino"})
	if _, err := RepairSex(ctx, mem, zerolog.Nop(), dep, sexTable("ans_cons"), sexCols, sexCols); err != nil {
		t.Fatal(err)
	}

	if sex, _, _, _ := mem.PatientState("1"); sex != model.SexFemale {
		t.Errorf("sex = %q, definite value must stay Femenino", sex)
	}
}

func TestRepairSex_MissingSexColumnSkipsSource(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	mem.UpsertPatient(ctx, "1")

	dep := sexTable("dep_cons", [2]string{"1", "F"})
	sum, err := RepairSex(ctx, mem, zerolog.Nop(), dep, sexTable("ans_cons"),
		source.Columns{source.FieldID: 0}, // sexo column absent
		sexCols)
	if err != nil {
		t.Fatal(err)
	}
	if sum.SexCandidates != 0 {
		t.Errorf("candidates = %d, want 0 when sexo column is absent", sum.SexCandidates)
	}
}

func medsTable(rows ...[3]string) *source.Table {
	t := &source.Table{Source: "dep_meds", Headers: []string{"id", "fecha", "riesgo"}}
	for _, r := range rows {
		cells := []source.Cell{text(r[0]), text(r[1]), text(r[2])}
		if r[2] == "" {
			cells[2] = missing()
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

var medCols = source.Columns{source.FieldID: 0, source.FieldDate: 1, source.FieldRisk: 2}

// seedVisit loads one depression visit through the engine so risk repair has
// a target row.
func seedVisit(t *testing.T, mem *store.Memory, historia string, date time.Time, risk model.Risk) {
	t.Helper()
	sc, _ := newTestSidecar(t)
	_, err := Run(context.Background(), mem, sc, zerolog.Nop(), Sources{
		DepVisits: []model.VisitRow{{Historia: historia, Date: date, Risk: risk}},
	}, false)
	if err != nil {
		t.Fatal(err)
	}
}

func visitRisk(t *testing.T, mem *store.Memory, historia string) model.Risk {
	t.Helper()
	ctx := context.Background()
	pid, ok, _ := mem.FindPatientID(ctx, historia)
	if !ok {
		t.Fatalf("patient %s missing", historia)
	}
	visits, err := mem.VisitsBetween(ctx, pid, nil, nil)
	if err != nil || len(visits) == 0 {
		t.Fatalf("no visits for %s: %v", historia, err)
	}
	return visits[0].Risk
}

func TestRepairRisk_BackfillsUnsetOnly(t *testing.T) {
	mem := store.NewMemory()
	seedVisit(t, mem, "1", day(2021, time.January, 1), model.RiskUnknown)
	seedVisit(t, mem, "2", day(2021, time.January, 1), model.RiskHigh)

	meds := medsTable(
		[3]string{"1", "2021-01-01", "NEG"},
		[3]string{"2", "2021-01-01", "bajo"}, // must not downgrade Alto
	)
	sum, err := RepairRisk(context.Background(), mem, zerolog.Nop(), meds, medCols)
	if err != nil {
		t.Fatalf("RepairRisk: %v", err)
	}
	if sum.RiskCandidates != 2 || sum.RiskUpdated != 1 {
		t.Errorf("summary = %+v", sum)
	}

	if r := visitRisk(t, mem, "1"); r != model.RiskHigh {
		t.Errorf("patient 1 risk = %q, want Alto", r)
	}
	if r := visitRisk(t, mem, "2"); r != model.RiskHigh {
		t.Errorf("patient 2 risk = %q, existing Alto must survive", r)
	}
}

func TestRepairRisk_HighestCandidateWinsPerDay(t *testing.T) {
	mem := store.NewMemory()
	seedVisit(t, mem, "1", day(2021, time.February, 2), model.RiskUnknown)

	meds := medsTable(
		[3]string{"1", "2021-02-02", "bajo"},
		[3]string{"1", "2021-02-02", "alto"},
		[3]string{"1", "2021-02-02", "moderado"},
	)
	sum, err := RepairRisk(context.Background(), mem, zerolog.Nop(), meds, medCols)
	if err != nil {
		t.Fatal(err)
	}
	if sum.RiskCandidates != 1 {
		t.Errorf("candidates = %d, want 1 after dedup", sum.RiskCandidates)
	}
	if r := visitRisk(t, mem, "1"); r != model.RiskHigh {
		t.Errorf("risk = %q, want Alto (priority Alto > Moderado > Bajo)", r)
	}
}

func TestRepairRisk_DropsUnresolvableRows(t *testing.T) {
	mem := store.NewMemory()
	seedVisit(t, mem, "1", day(2021, time.March, 3), model.RiskUnknown)

	meds := medsTable(
		[3]string{"", "2021-03-03", "alto"},   // no identifier
		[3]string{"1", "no-date", "alto"},     // bad date
		[3]string{"1", "2021-03-03", ""},      // missing risk
		[3]string{"1", "2021-03-03", "otro?"}, // unmapped risk stays unknown
	)
	sum, err := RepairRisk(context.Background(), mem, zerolog.Nop(), meds, medCols)
	if err != nil {
		t.Fatal(err)
	}
	if sum.RiskCandidates != 0 || sum.RiskUpdated != 0 {
		t.Errorf("summary = %+v, want nothing applied", sum)
	}
	if r := visitRisk(t, mem, "1"); r != model.RiskUnknown {
		t.Errorf("risk = %q, want unchanged unknown", r)
	}
}

func TestRepairRisk_OnlyDepressionVisits(t *testing.T) {
	mem := store.NewMemory()
	sc, _ := newTestSidecar(t)
	_, err := Run(context.Background(), mem, sc, zerolog.Nop(), Sources{
		AnxVisits: []model.VisitRow{{Historia: "5", Date: day(2021, time.April, 4)}},
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	meds := medsTable([3]string{"5", "2021-04-04", "alto"})
	sum, err := RepairRisk(context.Background(), mem, zerolog.Nop(), meds, medCols)
	if err != nil {
		t.Fatal(err)
	}
	if sum.RiskUpdated != 0 {
		t.Errorf("updated = %d, anxiety visit must not be touched", sum.RiskUpdated)
	}
	if r := visitRisk(t, mem, "5"); r != model.RiskUnknown {
		t.Errorf("risk = %q, want unknown", r)
	}
}
