package commands

import (
	"os"

	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var reportSuspiciousOnly *bool

func init() {
	reportSuspiciousOnly = reportCmd.Flags().Bool("suspicious", false, "Show only groups flagged for price-spread review.")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print stored match groups with per-catalog prices.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()
		cleanup := setupTelemetry(cmd.Context())
		defer cleanup()

		database := config.openDB()
		defer database.Close()
		store := productstore.NewStore(database)

		members, err := store.MatchGroupMembers(cmd.Context())
		if err != nil {
			fatal("failed to read match groups", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Group", "Tier", "Conf", "Catalog", "Price", "Status", "Name"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Name", WidthMax: 48},
			{Name: "Price", Align: text.AlignRight},
		})

		lastKey := ""
		for _, m := range members {
			if *reportSuspiciousOnly && !m.Suspicious {
				continue
			}
			key := m.GroupKey
			if m.Suspicious {
				key += " (!)"
			}
			if m.GroupKey == lastKey {
				key = ""
			}
			if key != "" && lastKey != "" {
				t.AppendSeparator()
			}
			t.AppendRow(table.Row{
				key, string(m.Tier), m.Confidence,
				m.Product.Catalog, m.Product.Price, string(m.Product.Status),
				m.Product.Name,
			})
			lastKey = m.GroupKey
		}
		t.Render()
	},
}
