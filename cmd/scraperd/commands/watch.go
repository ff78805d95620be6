package commands

import (
	"log/slog"

	"github.com/moyedx3/figure-scrapper/internal/matcher"
	"github.com/moyedx3/figure-scrapper/internal/pipeline"
	"github.com/moyedx3/figure-scrapper/internal/productstore"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const defaultWatchSchedule = "0 */6 * * *"

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run scrape cycles on a cron schedule until interrupted, rematching after each cycle.",
	Run: func(cmd *cobra.Command, args []string) {
		config := readConfig()

		cleanup := setupTelemetry(cmd.Context())
		defer cleanup()

		database := config.openDB()
		defer database.Close()
		store := productstore.NewStore(database)

		// With a queue configured, changes are held during the cycle and
		// dispatched as one batch after matching settles. This is where an
		// external notifier integration would take over delivery.
		var sink pipeline.EventSink = pipeline.SlogSink{}
		var queue *pipeline.QueueSink
		if config.EventQueueSize > 0 {
			queue = pipeline.NewQueueSink(config.EventQueueSize)
			sink = queue
		}

		p := config.pipeline(store, sink)
		m := matcher.NewMatcher(store)

		run := func() {
			ctx := cmd.Context()
			summary := p.Cycle(ctx)
			slog.InfoContext(ctx, "scheduled cycle complete",
				"changes", summary.TotalChanges(), "failed", summary.Failed())
			if _, err := m.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "matching after cycle failed", "err", err)
			}
			if queue != nil {
				changes := queue.Drain()
				for _, change := range changes {
					pipeline.SlogSink{}.EmitChange(ctx, change)
				}
				if len(changes) > 0 {
					slog.InfoContext(ctx, "dispatched queued changes", "count", len(changes))
				}
			}
		}

		schedule := config.WatchSchedule
		if schedule == "" {
			schedule = defaultWatchSchedule
		}
		c := cron.New()
		if _, err := c.AddFunc(schedule, run); err != nil {
			fatal("bad watch schedule", err)
		}

		slog.Info("watching catalogs", "schedule", schedule)
		// First cycle immediately, then follow the schedule.
		run()
		c.Start()

		<-cmd.Context().Done()
		slog.Info("shutting down watcher")
		// Stop returns a context that closes once in-flight jobs finish.
		<-c.Stop().Done()
	},
}
