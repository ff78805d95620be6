// Package commands holds the scraperd CLI: one-shot scrape cycles, the cron
// watcher, extraction/code backfills, matching and reporting.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/moyedx3/figure-scrapper/lib/telemetry"

	"github.com/spf13/cobra"
)

var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "scraperd",
	Short: "scraperd monitors Korean figure shop catalogs for new items, restocks, soldouts and price changes.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(message string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
	os.Exit(1)
}

// setupTelemetry initializes tracing/metrics when a telemetry.json5 exists
// and is a no-op otherwise.
func setupTelemetry(ctx context.Context) func() {
	tel, err := telemetry.SetupFromEnv(ctx, "scraperd")
	if errors.Is(err, os.ErrNotExist) {
		return func() {}
	}
	if err != nil {
		fatal("failed to initialize telemetry", err)
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}
}
