package commands

import (
	"fmt"

	"github.com/maltedev/mercadona-scraper/internal/orders"
	"github.com/maltedev/mercadona-scraper/internal/storage"
	"github.com/spf13/cobra"
)

var ordersFlags struct {
	out       string
	reconcile bool
}

func init() {
	f := ordersCmd.Flags()
	f.StringVar(&ordersFlags.out, "out", "", "Raw order table to write. Defaults to <output>/"+rawOrdersFile+".")
	f.BoolVar(&ordersFlags.reconcile, "reconcile", false, "Reconcile the pulled orders right away.")
	rootCmd.AddCommand(ordersCmd)
}

var ordersCmd = &cobra.Command{
	Use:   "orders [--out <file>] [--reconcile]",
	Short: "Pulls the order history of the account in MERCADONA_USER / MERCADONA_PASSWORD.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		out := ordersFlags.out
		if out == "" {
			out = outputPath(rawOrdersFile)
		}

		b, err := openBrowser()
		if err != nil {
			return err
		}
		defer b.Close()

		extractor := orders.NewExtractor(b, orderOptions(), log)
		lines, err := extractor.History(ctx, orders.Credentials{
			Email:    cfg.Orders.Email,
			Password: cfg.Orders.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to pull order history: %w", err)
		}

		if err := storage.WriteOrderLines(out, lines); err != nil {
			return err
		}
		log.Info("order history written", "lines", len(lines), "file", out)

		if !ordersFlags.reconcile {
			return nil
		}
		return reconcileOrders(cmd, lines)
	},
}
