package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/browser"
	"github.com/maltedev/mercadona-scraper/internal/catalog"
	"github.com/maltedev/mercadona-scraper/internal/crawl"
	"github.com/maltedev/mercadona-scraper/internal/database"
	"github.com/maltedev/mercadona-scraper/internal/events"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/maltedev/mercadona-scraper/internal/orders"
	"github.com/maltedev/mercadona-scraper/internal/ratelimit"
	"github.com/maltedev/mercadona-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	rawOrdersFile    = "order_history_raw.csv"
	orderHistoryFile = "order_history.csv"
)

func openBrowser() (*browser.Browser, error) {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer

	b, err := browser.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return b, nil
}

func catalogOptions() catalog.Options {
	return catalog.Options{
		BaseURL:      cfg.Crawl.BaseURL,
		PostalCode:   cfg.Crawl.PostalCode,
		WaitTimeout:  cfg.Crawl.WaitTimeout,
		ProductWait:  cfg.Crawl.ProductWait,
		MaxBackSteps: cfg.Crawl.MaxBackSteps,
	}
}

func orderOptions() orders.Options {
	return orders.Options{
		BaseURL:     cfg.Crawl.BaseURL,
		StoreURL:    cfg.Orders.StoreURL,
		PostalCode:  cfg.Crawl.PostalCode,
		WaitTimeout: cfg.Crawl.WaitTimeout,
		YearRule:    cfg.Orders.YearRule(),
	}
}

// missingPath places the missing-leaves report next to its snapshot.
func missingPath(snapshot string) string {
	return strings.TrimSuffix(snapshot, ".csv") + " missing.csv"
}

// connectRedis returns a nil client when the stream is disabled.
func connectRedis(ctx context.Context) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func newPublisher(client *redis.Client) crawl.Reporter {
	if client == nil {
		return crawl.NopReporter{}
	}
	return events.NewPublisher(client, events.Config{
		Stream: cfg.Redis.Stream,
		MaxLen: cfg.Redis.MaxLen,
	}, log)
}

// connectDB opens the pool and applies migrations.
func connectDB(ctx context.Context) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// discoverLeaves lists every leaf, or only those of the given categories in
// discovery order.
func discoverLeaves(ctx context.Context, opener browser.Opener, categories []string) ([]models.CategoryLeaf, error) {
	d := catalog.NewDiscoverer(opener, catalogOptions(), log)
	if len(categories) == 0 {
		return d.Leaves(ctx)
	}

	var leaves []models.CategoryLeaf
	for _, category := range categories {
		subs, err := d.Subcategories(ctx, category)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			leaves = append(leaves, models.CategoryLeaf{Category: category, Subcategory: sub})
		}
	}
	return leaves, nil
}

type crawlRun struct {
	Result       *crawl.Result
	SnapshotPath string
	MissingPath  string
}

// runCrawl walks the leaves, checkpointing into a new snapshot file, and
// writes the missing report once the walk ends. A walk that stops early
// still writes its report, with the leaves it never settled appended so a
// --missing run picks them up.
func runCrawl(ctx context.Context, opener browser.Opener, leaves []models.CategoryLeaf, reporter crawl.Reporter) (*crawlRun, error) {
	sink, err := storage.NewSnapshotWriter(storage.SnapshotPath(cfg.Output.Dir, time.Now()))
	if err != nil {
		return nil, err
	}

	backoff := ratelimit.NewBackoff(cfg.Crawl.Policy())
	policy := backoff.Policy()
	log.Info("crawl starting",
		"leaves", len(leaves),
		"snapshot", sink.Path(),
		"attempts", cfg.Crawl.Attempts,
		"wait", fmt.Sprintf("%s-%s", policy.MinWait, policy.MaxWait),
		"error_wait", fmt.Sprintf("%s-%s", policy.ErrorMinWait, policy.ErrorMaxWait),
		"ceiling", policy.Ceiling)

	orchestrator := crawl.New(crawl.Config{
		Extractor: catalog.NewExtractor(opener, catalogOptions(), log),
		Sink:      sink,
		Backoff:   backoff,
		Sleeper:   ratelimit.TimerSleeper{},
		Reporter:  reporter,
		Attempts:  cfg.Crawl.Attempts,
	}, log)

	result, runErr := orchestrator.Run(ctx, leaves)
	if result == nil {
		return nil, runErr
	}

	run := &crawlRun{Result: result, SnapshotPath: sink.Path(), MissingPath: missingPath(sink.Path())}
	if err := storage.WriteMissing(run.MissingPath, result.Unfinished()); err != nil {
		return run, errors.Join(runErr, fmt.Errorf("failed to write missing report: %w", err))
	}
	return run, runErr
}

func exportRun(ctx context.Context, run *crawlRun) error {
	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return database.NewExporter(db, log).ExportRun(ctx, run.Result.Summary, run.Result.Rows, run.Result.Missing)
}

func outputPath(name string) string {
	return filepath.Join(cfg.Output.Dir, name)
}
