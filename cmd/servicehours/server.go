package main

import (
	"github.com/spf13/cobra"

	"github.com/sakif/servicehours/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API",
	Long: `Starts the service-hours API. Pending migrations are applied on start.

	servicehours server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if err := ensureDBDir(cfg.DBPath); err != nil {
			return err
		}

		srv, err := server.New(cfg, logger)
		if err != nil {
			return err
		}
		// Start blocks until SIGINT/SIGTERM and closes everything it owns
		return srv.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
