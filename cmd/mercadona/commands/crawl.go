package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maltedev/mercadona-scraper/internal/api"
	"github.com/maltedev/mercadona-scraper/internal/crawl"
	"github.com/maltedev/mercadona-scraper/internal/metrics"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/maltedev/mercadona-scraper/internal/storage"
	"github.com/spf13/cobra"
)

var crawlFlags struct {
	missingFile string
	categories  []string
	serve       bool
	exportDB    bool
}

func init() {
	f := crawlCmd.Flags()
	f.StringVar(&crawlFlags.missingFile, "missing", "", "Retry only the subcategories listed in a missing report.")
	f.StringSliceVar(&crawlFlags.categories, "category", nil, "Crawl only these categories (repeatable).")
	f.BoolVar(&crawlFlags.serve, "serve", false, "Serve status and metrics over HTTP while crawling.")
	f.BoolVar(&crawlFlags.exportDB, "export-db", false, "Export the run to Postgres. Defaults to DB_ENABLED.")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [--missing <report.csv>] [--category <name>]...",
	Short: "Scrapes every product of the shop into a ~ delimited table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		exportDB := cfg.Database.Enabled
		if cmd.Flags().Changed("export-db") {
			exportDB = crawlFlags.exportDB
		}

		b, err := openBrowser()
		if err != nil {
			return err
		}
		defer b.Close()

		var leaves []models.CategoryLeaf
		if crawlFlags.missingFile != "" {
			leaves, err = storage.ReadMissing(crawlFlags.missingFile)
		} else {
			leaves, err = discoverLeaves(ctx, b, crawlFlags.categories)
		}
		if err != nil {
			return fmt.Errorf("failed to list subcategories: %w", err)
		}
		log.Info("subcategories to crawl", "count", len(leaves))

		redisClient, err := connectRedis(ctx)
		if err != nil {
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		m := metrics.NewMetrics()
		tracker := api.NewTracker()
		reporter := crawl.MultiReporter{crawl.NewLogReporter(log), m, tracker, newPublisher(redisClient)}

		serveCtx, stopServer := context.WithCancel(ctx)
		var wg sync.WaitGroup
		if crawlFlags.serve {
			router := api.NewRouter(api.Options{
				Tracker:        tracker,
				Gatherer:       m.Registry,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			}, log)
			srv := api.NewServer(cfg.Server.Port, router, log)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := srv.Run(serveCtx); err != nil {
					log.Error("status server stopped", "error", err)
				}
			}()
		}
		defer func() {
			stopServer()
			wg.Wait()
		}()

		run, runErr := runCrawl(ctx, b, leaves, reporter)
		if run == nil {
			return runErr
		}

		renderSummary(cmd.OutOrStdout(), run)
		renderMissing(cmd.OutOrStdout(), run.Result.Unfinished())

		if runErr != nil {
			if errors.Is(runErr, context.Canceled) {
				log.Warn("crawl interrupted, partial results kept",
					"file", run.SnapshotPath, "unvisited", len(run.Result.Pending), "missing_report", run.MissingPath)
			}
			return runErr
		}

		if exportDB {
			if err := exportRun(ctx, run); err != nil {
				return fmt.Errorf("failed to export run: %w", err)
			}
		}
		return nil
	},
}
