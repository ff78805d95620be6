package commands

import (
	"log/slog"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/extractor"
	"github.com/moyedx3/figure-scrapper/internal/parser"
	"github.com/moyedx3/figure-scrapper/internal/pipeline"
	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"github.com/spf13/cobra"
)

var (
	extractCatalog *string
	extractCodes   *bool
)

func init() {
	extractCatalog = extractCmd.Flags().String("catalog", "", "Limit the backfill to one catalog.")
	extractCodes = extractCmd.Flags().Bool("codes", false, "Backfill missing JAN codes from detail pages instead of attributes.")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Backfill attribute extraction (or JAN codes with --codes) for stored products.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()

		cleanup := setupTelemetry(cmd.Context())
		defer cleanup()

		database := config.openDB()
		defer database.Close()
		store := productstore.NewStore(database)

		delay := time.Duration(config.RequestDelayMs) * time.Millisecond
		timeout := time.Duration(config.HTTPTimeoutMs) * time.Millisecond

		for _, cat := range config.catalogs() {
			if *extractCatalog != "" && cat.Name != *extractCatalog {
				continue
			}
			fetcher := pipeline.NewRestyFetcher(pipeline.FetcherOptions{
				MinDelay: delay,
				Timeout:  timeout,
			})
			ext := extractor.New(store, config.classifier(),
				parser.FetchFunc(fetcher.Fetch), config.ExtractionThreshold)

			var res extractor.Result
			var err error
			if *extractCodes {
				res, err = ext.BackfillCodes(cmd.Context(), cat)
			} else {
				res, err = ext.Backfill(cmd.Context(), cat)
			}
			if err != nil {
				slog.Error("backfill failed", "catalog", cat.Name, "err", err)
				continue
			}
			slog.Info("backfill done",
				"catalog", cat.Name,
				"extracted", res.Extracted,
				"llm", res.ViaClassifier,
				"codes", res.CodesPersisted,
				"codes_rejected", res.CodesRejected,
				"failed", res.Failed,
			)
		}
	},
}
