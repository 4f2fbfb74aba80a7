package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/saludmental/cohortload/internal/model"
	"github.com/saludmental/cohortload/internal/normalize"
	"github.com/saludmental/cohortload/internal/source"
	"github.com/saludmental/cohortload/internal/store"
)

// RepairSex backfills patient sex from the consultation sources. The
// depression source takes priority: its first value per identifier wins, and
// the anxiety source only fills identifiers the depression source never
// mentioned. A stored definite sex is never overwritten. Bad rows are
// skipped, never fatal.
func RepairSex(ctx context.Context, st store.Store, log zerolog.Logger, dep, anx *source.Table, depCols, anxCols source.Columns) (*model.RepairSummary, error) {
	start := time.Now()
	sexByHistoria := make(map[string]model.Sex)
	order := make([]string, 0)

	collect := func(t *source.Table, cols source.Columns) {
		idCol, hasID := cols[source.FieldID]
		sexCol, hasSex := cols[source.FieldSex]
		if !hasID || !hasSex {
			return
		}
		for _, row := range t.Rows {
			var historia, raw string
			if idCol < len(row) {
				historia = row[idCol].AsText()
			}
			if sexCol < len(row) {
				raw = row[sexCol].AsText()
			}
			if historia == "" {
				continue
			}
			if _, seen := sexByHistoria[historia]; seen {
				continue
			}
			sexByHistoria[historia] = normalize.SexFrom(raw)
			order = append(order, historia)
		}
	}
	collect(dep, depCols)
	collect(anx, anxCols)

	sum := &model.RepairSummary{SexCandidates: len(order)}
	for _, historia := range order {
		n, err := st.UpdatePatientSexIfUndefined(ctx, historia, sexByHistoria[historia])
		if err != nil {
			return nil, err
		}
		sum.SexUpdated += n
	}
	sum.DurationTotal = time.Since(start)
	log.Info().
		Int("candidates", sum.SexCandidates).
		Int64("updated", sum.SexUpdated).
		Msg("sex repair complete")
	return sum, nil
}

type riskCandidate struct {
	historia string
	date     time.Time
	risk     model.Risk
}

// RepairRisk backfills nivel_riesgo on depression visits from the medication
// source. All of identifier, date, and mapped risk must resolve or the row is
// dropped; when several candidates target the same (identifier, date) the
// highest risk wins. Already-set risk levels are never overwritten.
func RepairRisk(ctx context.Context, st store.Store, log zerolog.Logger, meds *source.Table, medCols source.Columns) (*model.RepairSummary, error) {
	start := time.Now()

	idCol, hasID := medCols[source.FieldID]
	dateCol, hasDate := medCols[source.FieldDate]
	riskCol, hasRisk := medCols[source.FieldRisk]

	var candidates []riskCandidate
	if hasID && hasDate && hasRisk {
		for _, row := range meds.Rows {
			var historia string
			var date *time.Time
			risk := model.RiskUnknown
			if idCol < len(row) {
				historia = row[idCol].AsText()
			}
			if dateCol < len(row) {
				date = row[dateCol].AsDate()
			}
			if riskCol < len(row) {
				risk = normalize.RiskFrom(row[riskCol].AsText())
			}
			if historia == "" || date == nil || risk == model.RiskUnknown {
				continue
			}
			candidates = append(candidates, riskCandidate{historia: historia, date: *date, risk: risk})
		}
	}

	if len(candidates) == 0 {
		log.Warn().Msg("no usable risk candidates in medication source")
		return &model.RepairSummary{DurationTotal: time.Since(start)}, nil
	}

	// Highest priority first per (identifier, date); the first survivor wins.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.historia != b.historia {
			return a.historia < b.historia
		}
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		return a.risk.Priority() > b.risk.Priority()
	})

	type key struct {
		historia string
		date     time.Time
	}
	seen := make(map[key]bool)
	sum := &model.RepairSummary{}
	for _, c := range candidates {
		k := key{c.historia, c.date}
		if seen[k] {
			continue
		}
		seen[k] = true
		sum.RiskCandidates++

		n, err := st.UpdateVisitRiskIfUnset(ctx, c.historia, c.date, c.risk)
		if err != nil {
			return nil, err
		}
		sum.RiskUpdated += n
	}
	sum.DurationTotal = time.Since(start)
	log.Info().
		Int("candidates", sum.RiskCandidates).
		Int64("updated", sum.RiskUpdated).
		Msg("risk repair complete")
	return sum, nil
}
