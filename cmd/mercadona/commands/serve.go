package commands

import (
	"context"
	"errors"

	"github.com/maltedev/mercadona-scraper/internal/api"
	"github.com/maltedev/mercadona-scraper/internal/crawl"
	"github.com/maltedev/mercadona-scraper/internal/database"
	"github.com/maltedev/mercadona-scraper/internal/metrics"
	"github.com/spf13/cobra"
)

var serveRunOnStart bool

func init() {
	serveCmd.Flags().BoolVar(&serveRunOnStart, "run", false, "Start a crawl as soon as the server is up.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--run]",
	Short: "Serves crawl status and metrics; POST /api/v1/run starts a crawl.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		redisClient, err := connectRedis(ctx)
		if err != nil {
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		var db *database.DB
		if cfg.Database.Enabled {
			db, err = connectDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
		}

		m := metrics.NewMetrics()
		tracker := api.NewTracker()
		reporter := crawl.MultiReporter{crawl.NewLogReporter(log), m, tracker, newPublisher(redisClient)}

		launcher := api.NewLauncher(ctx, func(ctx context.Context) error {
			b, err := openBrowser()
			if err != nil {
				return err
			}
			defer b.Close()

			leaves, err := discoverLeaves(ctx, b, nil)
			if err != nil {
				return err
			}
			run, err := runCrawl(ctx, b, leaves, reporter)
			if err != nil {
				return err
			}
			if db != nil {
				return database.NewExporter(db, log).ExportRun(ctx, run.Result.Summary, run.Result.Rows, run.Result.Missing)
			}
			return nil
		}, log)

		ping := func(ctx context.Context) error {
			var errs []error
			if redisClient != nil {
				errs = append(errs, redisClient.Ping(ctx).Err())
			}
			if db != nil {
				errs = append(errs, db.Ping(ctx))
			}
			return errors.Join(errs...)
		}

		router := api.NewRouter(api.Options{
			Tracker:        tracker,
			Gatherer:       m.Registry,
			Launcher:       launcher,
			Ping:           ping,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, log)

		if serveRunOnStart {
			if err := launcher.Launch(); err != nil {
				return err
			}
		}

		err = api.NewServer(cfg.Server.Port, router, log).Run(ctx)
		launcher.Wait()
		return err
	},
}
