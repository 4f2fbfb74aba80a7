// Package evolution builds the per-patient risk time series served to the
// dashboard: risk levels over time, an OLS trend slope, inter-visit gaps,
// and the disengagement flag.
package evolution

import (
	"context"
	"strings"
	"time"

	"github.com/saludmental/cohortload/internal/model"
	"github.com/saludmental/cohortload/internal/store"
)

// NoMedicationPlaceholder fills points that have no applicable prescription.
const NoMedicationPlaceholder = "Sin medicación registrada"

// disengagementDays is the gap threshold: a final gap strictly greater than
// this marks the patient as having dropped off.
const disengagementDays = 60

// Series is the wire contract of the evolution endpoint. Field names match
// the dashboard front end.
type Series struct {
	Labels []string `json:"labels"`
	// Risk holds 0/1/2 per point, nil where the level never resolved.
	Risk []*int     `json:"riesgo"`
	Meds [][]string `json:"meds"`
	// Slope is the OLS trend of risk vs days since first visit; nil with
	// fewer than two resolved-risk points.
	Slope       *float64 `json:"slope"`
	Gaps        []int    `json:"gaps"`
	LastGapDays int      `json:"last_gap_days"`
	Desisted    bool     `json:"desistio"`
	DesistFrom  *string  `json:"desist_from"`
	// HighRiskIdx are the indices of points at level 2, for highlighting.
	HighRiskIdx []int `json:"neg_idx"`
}

// Query bounds and filters one series request.
type Query struct {
	PatientID int64
	From      *time.Time
	To        *time.Time
	// MedLike filters the per-point medication lists by case-insensitive
	// name substring.
	MedLike string
}

// Build assembles the series for one patient. Returns
// store.ErrPatientNotFound when the id resolves to nothing; every other kind
// of missing per-visit data degrades gracefully instead of failing.
func Build(ctx context.Context, rd store.Reader, q Query) (*Series, error) {
	exists, err := rd.PatientExists(ctx, q.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrPatientNotFound
	}

	visits, err := rd.VisitsBetween(ctx, q.PatientID, q.From, q.To)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(visits))
	for i, v := range visits {
		ids[i] = v.ID
	}
	medsByVisit, err := rd.MedicationsForVisits(ctx, ids, q.MedLike)
	if err != nil {
		return nil, err
	}

	return Compute(visits, medsByVisit), nil
}

// Compute is the pure core of the series build: no I/O, deterministic, safe
// for concurrent use.
func Compute(visits []model.Visit, medsByVisit map[int64][]model.Medication) *Series {
	s := &Series{
		Labels:      make([]string, 0, len(visits)),
		Risk:        make([]*int, 0, len(visits)),
		Meds:        make([][]string, 0, len(visits)),
		Gaps:        []int{},
		HighRiskIdx: []int{},
	}

	dates := make([]time.Time, 0, len(visits))
	for i, v := range visits {
		s.Labels = append(s.Labels, v.Date.Format("2006-01-02"))
		dates = append(dates, v.Date)

		if lvl, ok := v.Risk.Level(); ok {
			l := lvl
			s.Risk = append(s.Risk, &l)
			if lvl == 2 {
				s.HighRiskIdx = append(s.HighRiskIdx, i)
			}
		} else {
			s.Risk = append(s.Risk, nil)
		}

		s.Meds = append(s.Meds, medStrings(medsByVisit[v.ID]))
	}

	s.Slope = slope(dates, s.Risk)

	for i := 1; i < len(dates); i++ {
		s.Gaps = append(s.Gaps, daysBetween(dates[i-1], dates[i]))
	}
	if n := len(s.Gaps); n > 0 {
		s.LastGapDays = s.Gaps[n-1]
		if s.LastGapDays > disengagementDays {
			s.Desisted = true
			from := dates[len(dates)-1].Format("2006-01-02")
			s.DesistFrom = &from
		}
	}

	return s
}

// medStrings renders each prescription as "name[ dose][ (regimen)]", skipping
// empty entries, and substitutes the placeholder when nothing applies.
func medStrings(meds []model.Medication) []string {
	out := make([]string, 0, len(meds))
	for _, m := range meds {
		name := strings.TrimSpace(m.Name)
		if name == "" || name == NoMedicationPlaceholder {
			continue
		}
		parts := []string{name}
		if d := strings.TrimSpace(m.Dose); d != "" {
			parts = append(parts, d)
		}
		if r := strings.TrimSpace(m.Regimen); r != "" {
			parts = append(parts, "("+r+")")
		}
		out = append(out, strings.Join(parts, " "))
	}
	if len(out) == 0 {
		return []string{NoMedicationPlaceholder}
	}
	return out
}

// slope fits risk level against days-since-first-visit by ordinary least
// squares, using only points with a resolved risk. Nil with fewer than two
// such points; 0 when the x variance is exactly zero.
func slope(dates []time.Time, risk []*int) *float64 {
	if len(dates) < 2 {
		return nil
	}
	t0 := dates[0]
	var xs, ys []float64
	for i, r := range risk {
		if r == nil {
			continue
		}
		xs = append(xs, float64(daysBetween(t0, dates[i])))
		ys = append(ys, float64(*r))
	}
	if len(xs) < 2 {
		return nil
	}

	n := float64(len(xs))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
	}
	denom := n*sumX2 - sumX*sumX
	out := 0.0
	if denom != 0 {
		out = (n*sumXY - sumX*sumY) / denom
	}
	return &out
}

func daysBetween(a, b time.Time) int {
	return int(b.Truncate(24*time.Hour).Sub(a.Truncate(24*time.Hour)).Hours() / 24)
}
