package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maltedev/mercadona-scraper/internal/config"
	"github.com/maltedev/mercadona-scraper/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log *slog.Logger
)

var rootFlags struct {
	logLevel   string
	logFormat  string
	outputDir  string
	postalCode string
	headed     bool
}

var rootCmd = &cobra.Command{
	Use:           "mercadona",
	Short:         "mercadona scrapes the Mercadona shop catalog and order history.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyRootFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		cfg = loaded
		log = logger.New(cfg.Logging.Level, cfg.Logging.Format)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level (debug, info, warn, error). Overrides LOG_LEVEL.")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "Log format (json or text). Overrides LOG_FORMAT.")
	f.StringVarP(&rootFlags.outputDir, "output", "o", "", "Directory for output tables. Overrides OUTPUT_DIR.")
	f.StringVar(&rootFlags.postalCode, "postal-code", "", "Postal code used to enter the shop. Overrides MERCADONA_POSTAL_CODE.")
	f.BoolVar(&rootFlags.headed, "headed", false, "Show the browser window.")
}

func applyRootFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Logging.Level = rootFlags.logLevel
	}
	if flags.Changed("log-format") {
		c.Logging.Format = rootFlags.logFormat
	}
	if flags.Changed("output") {
		c.Output.Dir = rootFlags.outputDir
	}
	if flags.Changed("postal-code") {
		c.Crawl.PostalCode = rootFlags.postalCode
	}
	if flags.Changed("headed") {
		c.Browser.Headless = !rootFlags.headed
	}
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
