package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saludmental/cohortload/internal/evolution"
	"github.com/saludmental/cohortload/internal/store"
)

func (s *Server) handleHealth(c *gin.Context) {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDashboard(c *gin.Context) {
	summary, err := s.reader.DashboardSummary(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("dashboard summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleEvolution serves
// GET /api/pacientes/:paciente_id/evolucion?desde=YYYY-MM-DD&hasta=YYYY-MM-DD&med=texto
func (s *Server) handleEvolution(c *gin.Context) {
	patientID, err := strconv.ParseInt(c.Param("paciente_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paciente_id inválido"})
		return
	}

	q := evolution.Query{
		PatientID: patientID,
		From:      parseDateParam(c.Query("desde")),
		To:        parseDateParam(c.Query("hasta")),
		MedLike:   c.Query("med"),
	}

	series, err := evolution.Build(c.Request.Context(), s.reader, q)
	if err != nil {
		if errors.Is(err, store.ErrPatientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "paciente no encontrado"})
			return
		}
		s.log.Error().Err(err).Int64("paciente_id", patientID).Msg("evolution build failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, series)
}

// parseDateParam accepts ISO dates only; anything else means no bound.
func parseDateParam(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
