package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/saludmental/cohortload/internal/api"
	"github.com/saludmental/cohortload/internal/db"
	"github.com/saludmental/cohortload/internal/exitcode"
	"github.com/saludmental/cohortload/internal/logging"
	"github.com/saludmental/cohortload/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&cfg.Addr, "addr", ":8080", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	if cfg.DSN == "" {
		log.Error().Msg("--dsn or DATABASE_URL is required")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	srv := api.NewServer(store.NewPostgres(pool), pool, log)
	if err := srv.Run(cfg.Addr); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(exitcode.ServeError)
	}
	return nil
}
