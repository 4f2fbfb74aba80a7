package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saludmental/cohortload/internal/config"
	"github.com/saludmental/cohortload/internal/exitcode"
)

var (
	cfg        config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "cohortload",
	Short: "Mental-health cohort CSV → Postgres reconciliation loader",
	Long:  "Reconciles depression and anxiety clinic exports into Postgres, repairs sex and risk fields, and serves the dashboard API.",
}

func init() {
	_ = godotenv.Load()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&configPath, "config", "", "Optional YAML file with column name overrides")
}

// loadConfigFile merges the optional --config YAML into cfg.
func loadConfigFile() error {
	if configPath == "" {
		return nil
	}
	return cfg.LoadFromFile(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcode.UsageError)
	}
}
