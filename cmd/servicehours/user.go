package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/notify"
	"github.com/sakif/servicehours/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userRoleCmd = &cobra.Command{
	Use:   "role <email> <volunteer|organizer|admin>",
	Short: "Change a user's role",
	Long: `Sign-up always creates volunteers; this is how the first organizer and
admin accounts are made. The new role applies from the user's next sign-in.`,
	Args: cobra.ExactArgs(2),
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

		backend := notify.NewMemory()
		defer backend.Close()

		// SetRole uses neither tokens nor passwords
		users := service.NewAuthService(db.Users(), nil, nil, notify.NewBus(backend), logger)
		user, err := users.SetRole(cmd.Context(), args[0], model.Role(args[1]))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", user.Email, user.ID, user.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userRoleCmd)
}
