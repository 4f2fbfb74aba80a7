// Package api serves the dashboard read endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/saludmental/cohortload/internal/store"
)

// Pinger is the health-check dependency; satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the gin router to the read store.
type Server struct {
	reader store.Reader
	pinger Pinger
	log    zerolog.Logger
}

func NewServer(reader store.Reader, pinger Pinger, log zerolog.Logger) *Server {
	return &Server{reader: reader, pinger: pinger, log: log}
}

// Router builds the gin engine with CORS open for the dashboard front end.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/healthz", s.handleHealth)
	r.GET("/api/dashboard", s.handleDashboard)
	r.GET("/api/pacientes/:paciente_id/evolucion", s.handleEvolution)
	return r
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info().Str("addr", addr).Msg("api server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		s.log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
