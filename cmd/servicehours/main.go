// Command servicehours runs the service-hours tracker and its maintenance
// tasks.
//
//	servicehours server                      start the HTTP API
//	servicehours migrate up                  apply database migrations
//	servicehours migrate version             print the schema version
//	servicehours recompute <userID>          rebuild one user's progress caches
//	servicehours user role <email> <role>    change a user's role
//
// Configuration comes from the environment (and .env outside production);
// see internal/config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
