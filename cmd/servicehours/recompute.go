package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sakif/servicehours/internal/notify"
	"github.com/sakif/servicehours/internal/server"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute <userID>",
	Short: "Rebuild a user's cached hours and coins from the ledger",
	Long: `Recomputes one user's per-event hours, total, coins and certificates
from the approved hour requests, rewrites the caches that drifted, and prints
the result as JSON. With NOTIFY_BACKEND=rabbitmq, running servers see the
update on their progress streams.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		backend, err := server.NewBackend(cfg.Notify)
		if err != nil {
			return err
		}
		defer backend.Close()

		engine := server.NewAccountingEngine(cfg, db, notify.NewBus(backend), logger)
		progress, err := engine.RecomputeForUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(progress)
	},
}

func init() {
	rootCmd.AddCommand(recomputeCmd)
}
