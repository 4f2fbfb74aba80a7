package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saludmental/cohortload/internal/config"
	"github.com/saludmental/cohortload/internal/db"
	"github.com/saludmental/cohortload/internal/exitcode"
	"github.com/saludmental/cohortload/internal/logging"
	"github.com/saludmental/cohortload/internal/model"
	"github.com/saludmental/cohortload/internal/reconcile"
	"github.com/saludmental/cohortload/internal/source"
	"github.com/saludmental/cohortload/internal/store"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Reconcile the three clinic exports into the database",
	RunE:  runLoad,
}

func init() {
	f := loadCmd.Flags()
	f.StringVar(&cfg.DepVisitsPath, "dep-consultas", "", "Depression visits CSV (required)")
	f.StringVar(&cfg.DepMedsPath, "dep-meds", "", "Depression medications CSV (required)")
	f.StringVar(&cfg.AnxVisitsPath, "ans-consultas", "", "Anxiety visits CSV (required)")
	f.StringVar(&cfg.MapPath, "out-map", "consulta_map.csv", "Sidecar CSV mapping each loaded visit to its consulta_id")
	f.StringVar(&cfg.LogPath, "out-log", "carga_log.csv", "Sidecar CSV of skipped rows")
	f.BoolVar(&cfg.Reset, "reset", false, "Truncate all tables before loading")
	f.BoolVar(&cfg.DryRun, "dry-run", false, "Run against an in-memory store, write sidecars only")
	rootCmd.AddCommand(loadCmd)
}

// sourceFields lists the resolver requirements of each export.
var sourceFields = map[string]struct{ required, optional []source.Field }{
	config.SourceDepVisits: {
		required: []source.Field{source.FieldID, source.FieldDate},
		optional: []source.Field{source.FieldNarrative, source.FieldRisk, source.FieldSex},
	},
	config.SourceDepMeds: {
		required: []source.Field{source.FieldID, source.FieldDate, source.FieldMed},
		optional: []source.Field{source.FieldDose, source.FieldRegimen, source.FieldRisk},
	},
	config.SourceAnxVisits: {
		required: []source.Field{source.FieldID, source.FieldDate},
		optional: []source.Field{source.FieldNarrative, source.FieldRisk, source.FieldSex},
	},
}

// readSource parses one export and resolves its columns.
func readSource(path, tag string) (*source.Table, source.Columns, error) {
	t, err := source.ReadTable(path, tag)
	if err != nil {
		return nil, nil, err
	}
	fields := sourceFields[tag]
	cols, err := source.Resolve(t, cfg.ColumnDefaults(), cfg.Overrides(tag), fields.required, fields.optional)
	if err != nil {
		return nil, nil, err
	}
	return t, cols, nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	if err := loadConfigFile(); err != nil {
		log.Error().Err(err).Msg("config file invalid")
		os.Exit(exitcode.UsageError)
	}
	validate := cfg.ValidateWithDSN
	if cfg.DryRun {
		validate = cfg.ValidateLoad
	}
	if err := validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	src, err := readAllSources(log)
	if err != nil {
		var sm *source.SchemaMismatchError
		if errors.As(err, &sm) {
			log.Error().Err(err).Str("source", sm.Source).Msg("source schema mismatch")
			os.Exit(exitcode.ValidationError)
		}
		log.Error().Err(err).Msg("reading sources failed")
		os.Exit(exitcode.ValidationError)
	}

	mapFile, err := os.Create(cfg.MapPath)
	if err != nil {
		log.Error().Err(err).Msg("cannot create mapping sidecar")
		os.Exit(exitcode.UsageError)
	}
	defer mapFile.Close()
	logFile, err := os.Create(cfg.LogPath)
	if err != nil {
		log.Error().Err(err).Msg("cannot create log sidecar")
		os.Exit(exitcode.UsageError)
	}
	defer logFile.Close()
	sc, err := reconcile.NewSidecar(mapFile, logFile)
	if err != nil {
		log.Error().Err(err).Msg("sidecar init failed")
		os.Exit(exitcode.UsageError)
	}

	var summary *model.LoadSummary
	if cfg.DryRun {
		summary, err = reconcile.Run(ctx, store.NewMemory(), sc, log, src, cfg.Reset)
	} else {
		summary, err = runLoadTx(ctx, log, sc, src)
	}
	if err != nil {
		var pe *reconcile.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("load failed")
		} else {
			log.Error().Err(err).Msg("load failed")
		}
		os.Exit(exitcode.LoadError)
	}

	fmt.Printf("Load complete: %d patients created, %d/%d depression visits, %d meds (%d new visits), %d/%d anxiety visits (%.1fs)\n",
		summary.PatientsCreated,
		summary.DepVisitsLoaded, summary.DepVisitsLoaded+summary.DepVisitsSkipped,
		summary.MedsInserted, summary.MedVisitsCreated,
		summary.AnxVisitsLoaded, summary.AnxVisitsLoaded+summary.AnxVisitsSkipped,
		summary.DurationTotal.Seconds())
	if cfg.DryRun {
		fmt.Println("Dry run: no database writes performed")
	}
	return nil
}

// readAllSources reads and coerces the three exports.
func readAllSources(log zerolog.Logger) (reconcile.Sources, error) {
	var src reconcile.Sources

	dep, depCols, err := readSource(cfg.DepVisitsPath, config.SourceDepVisits)
	if err != nil {
		return src, err
	}
	src.DepVisits = source.CoerceVisitRows(dep, depCols)
	log.Info().Str("source", config.SourceDepVisits).Int("raw", len(dep.Rows)).Int("coerced", len(src.DepVisits)).Msg("source read")

	meds, medCols, err := readSource(cfg.DepMedsPath, config.SourceDepMeds)
	if err != nil {
		return src, err
	}
	src.DepMeds = source.CoerceMedRows(meds, medCols)
	log.Info().Str("source", config.SourceDepMeds).Int("raw", len(meds.Rows)).Int("coerced", len(src.DepMeds)).Msg("source read")

	anx, anxCols, err := readSource(cfg.AnxVisitsPath, config.SourceAnxVisits)
	if err != nil {
		return src, err
	}
	src.AnxVisits = source.CoerceVisitRows(anx, anxCols)
	log.Info().Str("source", config.SourceAnxVisits).Int("raw", len(anx.Rows)).Int("coerced", len(src.AnxVisits)).Msg("source read")

	return src, nil
}

// runLoadTx executes the reconciliation inside a single transaction.
func runLoadTx(ctx context.Context, log zerolog.Logger, sc *reconcile.Sidecar, src reconcile.Sources) (*model.LoadSummary, error) {
	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	summary, err := reconcile.Run(ctx, store.NewPostgres(tx), sc, log, src, cfg.Reset)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return summary, nil
}
