package reconcile

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// Reason codes written to the load log. Fixed vocabulary; downstream tooling
// matches on these strings.
const (
	ReasonNoPatient      = "SIN_PACIENTE"
	ReasonVisitNotLoaded = "NO_SE_CREO_CONSULTA"
)

// Source tags for log entries.
const (
	TagDepVisits = "DEP_CONS"
	TagDepMeds   = "DEP_MED"
	TagAnxVisits = "ANS_CONS"
)

// Sidecar writes the two append-only side channels of a reconciliation run:
// the (identifier, date, visit id) mapping and the row-level decision log.
// Rows are flushed as they are written, but the files are only meaningful if
// the surrounding transaction commits; on abort the caller should discard
// them.
type Sidecar struct {
	mapping *csv.Writer
	log     *csv.Writer
}

// NewSidecar writes headers to both channels and returns the writer pair.
func NewSidecar(mapping, logw io.Writer) (*Sidecar, error) {
	s := &Sidecar{mapping: csv.NewWriter(mapping), log: csv.NewWriter(logw)}
	if err := s.mapping.Write([]string{"id_paciente", "fecha_consulta", "consulta_id"}); err != nil {
		return nil, fmt.Errorf("write mapping header: %w", err)
	}
	if err := s.log.Write([]string{"origen", "id_paciente", "fecha", "detalle", "extra"}); err != nil {
		return nil, fmt.Errorf("write log header: %w", err)
	}
	s.mapping.Flush()
	s.log.Flush()
	return s, nil
}

// Map records one resolved (identifier, date) → visit id triple.
func (s *Sidecar) Map(historia string, date time.Time, visitID int64) error {
	if err := s.mapping.Write([]string{historia, date.Format("2006-01-02"), fmt.Sprintf("%d", visitID)}); err != nil {
		return fmt.Errorf("write mapping row: %w", err)
	}
	s.mapping.Flush()
	return s.mapping.Error()
}

// Log records one skipped or degraded row with its reason code.
func (s *Sidecar) Log(sourceTag, historia string, date time.Time, reason, detail string) error {
	fecha := ""
	if !date.IsZero() {
		fecha = date.Format("2006-01-02")
	}
	if err := s.log.Write([]string{sourceTag, historia, fecha, reason, detail}); err != nil {
		return fmt.Errorf("write log row: %w", err)
	}
	s.log.Flush()
	return s.log.Error()
}
