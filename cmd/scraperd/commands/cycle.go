package commands

import (
	"os"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/pipeline"
	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const summaryDurationUnit = time.Millisecond

func init() {
	rootCmd.AddCommand(cycleCmd)
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one scrape cycle over every configured catalog and exit.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()

		cleanup := setupTelemetry(cmd.Context())
		defer cleanup()

		database := config.openDB()
		defer database.Close()
		store := productstore.NewStore(database)

		p := config.pipeline(store, pipeline.SlogSink{})
		summary := p.Cycle(cmd.Context())
		printSummary(summary)

		if summary.Failed() == len(summary.Catalogs) {
			os.Exit(1)
		}
	},
}

func printSummary(summary pipeline.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Catalog", "Items", "Skipped", "New", "Changes", "Extracted", "LLM", "Status"})
	for _, cs := range summary.Catalogs {
		status := "ok"
		if cs.LayoutChanged {
			status = "layout changed"
		}
		if cs.Failed {
			status = "FAILED"
		}
		t.AppendRow(table.Row{
			cs.Catalog, cs.Items, cs.Skipped, cs.New, cs.Changes,
			cs.Extracted, cs.ViaClassifier, status,
		})
	}
	t.AppendFooter(table.Row{"total", "", "", "", summary.TotalChanges(), "", "", summary.Duration.Round(summaryDurationUnit)})
	t.Render()
}
