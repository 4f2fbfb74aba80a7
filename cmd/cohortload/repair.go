package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saludmental/cohortload/internal/config"
	"github.com/saludmental/cohortload/internal/db"
	"github.com/saludmental/cohortload/internal/exitcode"
	"github.com/saludmental/cohortload/internal/logging"
	"github.com/saludmental/cohortload/internal/reconcile"
	"github.com/saludmental/cohortload/internal/source"
	"github.com/saludmental/cohortload/internal/store"
)

var (
	repairSkipSex  bool
	repairSkipRisk bool
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Backfill patient sex and depression visit risk from the exports",
	RunE:  runRepair,
}

func init() {
	f := repairCmd.Flags()
	f.StringVar(&cfg.DepVisitsPath, "dep-consultas", "", "Depression visits CSV (required)")
	f.StringVar(&cfg.DepMedsPath, "dep-meds", "", "Depression medications CSV (required)")
	f.StringVar(&cfg.AnxVisitsPath, "ans-consultas", "", "Anxiety visits CSV (required)")
	f.BoolVar(&repairSkipSex, "skip-sex", false, "Skip the sex backfill pass")
	f.BoolVar(&repairSkipRisk, "skip-risk", false, "Skip the risk backfill pass")
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	if err := loadConfigFile(); err != nil {
		log.Error().Err(err).Msg("config file invalid")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	type parsed struct {
		table *source.Table
		cols  source.Columns
	}
	tables := make(map[string]parsed, 3)
	for tag, path := range map[string]string{
		config.SourceDepVisits: cfg.DepVisitsPath,
		config.SourceDepMeds:   cfg.DepMedsPath,
		config.SourceAnxVisits: cfg.AnxVisitsPath,
	} {
		t, cols, err := readSource(path, tag)
		if err != nil {
			var sm *source.SchemaMismatchError
			if errors.As(err, &sm) {
				log.Error().Err(err).Str("source", sm.Source).Msg("source schema mismatch")
			} else {
				log.Error().Err(err).Str("source", tag).Msg("reading source failed")
			}
			os.Exit(exitcode.ValidationError)
		}
		tables[tag] = parsed{t, cols}
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Error().Err(err).Msg("begin transaction failed")
		os.Exit(exitcode.RepairError)
	}
	defer tx.Rollback(ctx)
	st := store.NewPostgres(tx)

	if !repairSkipSex {
		dep, anx := tables[config.SourceDepVisits], tables[config.SourceAnxVisits]
		sum, err := reconcile.RepairSex(ctx, st, log, dep.table, anx.table, dep.cols, anx.cols)
		if err != nil {
			log.Error().Err(err).Msg("sex repair failed")
			os.Exit(exitcode.RepairError)
		}
		fmt.Printf("Sex repair: %d candidates, %d patients updated (%.1fs)\n",
			sum.SexCandidates, sum.SexUpdated, sum.DurationTotal.Seconds())
	}
	if !repairSkipRisk {
		meds := tables[config.SourceDepMeds]
		sum, err := reconcile.RepairRisk(ctx, st, log, meds.table, meds.cols)
		if err != nil {
			log.Error().Err(err).Msg("risk repair failed")
			os.Exit(exitcode.RepairError)
		}
		fmt.Printf("Risk repair: %d candidates, %d visits updated (%.1fs)\n",
			sum.RiskCandidates, sum.RiskUpdated, sum.DurationTotal.Seconds())
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("commit failed")
		os.Exit(exitcode.RepairError)
	}
	return nil
}
