package commands

import (
	"fmt"
	"os"

	"github.com/moyedx3/figure-scrapper/internal/matcher"
	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(matchCmd)
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rebuild cross-catalog match groups from current store state.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()

		cleanup := setupTelemetry(cmd.Context())
		defer cleanup()

		database := config.openDB()
		defer database.Close()
		store := productstore.NewStore(database)

		groups, err := matcher.NewMatcher(store).Run(cmd.Context())
		if err != nil {
			fatal("matching failed", err)
		}

		suspicious := 0
		byTier := map[productstore.MatchTier]int{}
		for _, g := range groups {
			byTier[g.Tier]++
			if g.Suspicious {
				suspicious++
			}
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Tier", "Groups"})
		for _, tier := range []productstore.MatchTier{
			productstore.TierExactCode,
			productstore.TierStructured,
			productstore.TierPartial,
		} {
			t.AppendRow(table.Row{string(tier), byTier[tier]})
		}
		t.AppendFooter(table.Row{"suspicious", suspicious})
		t.Render()

		fmt.Printf("%d groups total\n", len(groups))
	},
}
