package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/servicehours/internal/config"
	sqliteRepo "github.com/sakif/servicehours/internal/repository/sqlite"
)

var rootCmd = &cobra.Command{
	Use:           "servicehours",
	Short:         "Volunteer service-hours tracker",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// setup loads the configuration and builds the logger every command uses.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.NewLogger(), nil
}

// ensureDBDir creates the directory holding the database file, like
// `mkdir -p`. In-memory databases need nothing.
func ensureDBDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}

// openDB opens and migrates the database named in cfg.
func openDB(cfg *config.Config) (*sqliteRepo.DB, error) {
	if err := ensureDBDir(cfg.DBPath); err != nil {
		return nil, err
	}
	return sqliteRepo.New(cfg.DBPath)
}
