package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/saludmental/cohortload/internal/normalize"
)

// CellKind tags the loosely-typed spreadsheet cell variant. Everything
// downstream of the coercer sees strongly-typed fields, never a Cell.
type CellKind int

const (
	CellMissing CellKind = iota
	CellText
	CellNumber
	CellDate
)

// Cell is one raw spreadsheet value. Exactly one of the payload fields is
// meaningful, selected by Kind.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Date   time.Time
}

// Missing-value markers commonly found in the exports, pre-normalized.
var missingMarkers = map[string]bool{
	"": true, "na": true, "n/a": true, "nan": true,
	"null": true, "none": true, "-": true, "--": true,
	"sin dato": true,
}

// sniffCell classifies a raw CSV field. Numbers and ISO dates are detected
// eagerly; anything else non-missing stays text.
func sniffCell(raw string) Cell {
	s := strings.TrimSpace(raw)
	if missingMarkers[normalize.Text(s)] {
		return Cell{Kind: CellMissing}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Cell{Kind: CellDate, Date: t}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Cell{Kind: CellNumber, Number: n, Text: s}
	}
	return Cell{Kind: CellText, Text: s}
}

// AsText renders the cell as a trimmed identifier-grade string.
// Integral numbers lose the spreadsheet ".0" artifact ("123.0" → "123").
// Missing cells yield "".
func (c Cell) AsText() string {
	switch c.Kind {
	case CellText:
		return strings.TrimSpace(c.Text)
	case CellNumber:
		if c.Number == float64(int64(c.Number)) {
			return strconv.FormatInt(int64(c.Number), 10)
		}
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellDate:
		return c.Date.Format("2006-01-02")
	}
	return ""
}

// AsDate parses the cell as a calendar date, day-first with month-first
// fallback. Nil when the cell is missing or unparseable.
func (c Cell) AsDate() *time.Time {
	switch c.Kind {
	case CellDate:
		t := c.Date
		return &t
	case CellText, CellNumber:
		return normalize.ParseDateFlexible(c.AsText())
	}
	return nil
}
