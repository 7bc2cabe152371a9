// Package cli implements the depscan command tree.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/therickybobbeh/depscan/internal/config"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "depscan",
	Short: "Dependency vulnerability scanner for npm and PyPI projects",
	Long: `depscan enumerates every direct and transitive dependency declared in a
project's manifest and lock files, checks each against the OSV.dev
vulnerability database, and reports the findings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// newLogger builds the application logger honoring --verbose.
func newLogger() *logrus.Logger {
	log := config.NewLogger()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// buildApp loads configuration and opens the cache database. A cache that
// fails to open is logged and skipped, never fatal.
func buildApp(log *logrus.Logger) *config.AppConfig {
	cfg := config.LoadConfigurations()
	app := &config.AppConfig{Log: log, Config: cfg}
	db, err := config.NewCacheDatabase(cfg)
	if err != nil {
		log.WithError(err).Warn("vulnerability cache unavailable, scanning without it")
	} else {
		app.DB = db.Connection
	}
	return app
}
