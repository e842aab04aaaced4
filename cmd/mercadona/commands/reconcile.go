package commands

import (
	"fmt"

	"github.com/maltedev/mercadona-scraper/internal/database"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/maltedev/mercadona-scraper/internal/reconcile"
	"github.com/maltedev/mercadona-scraper/internal/storage"
	"github.com/spf13/cobra"
)

var reconcileFlags struct {
	orders    string
	reference string
	mappings  string
	out       string
	exportDB  bool
}

func init() {
	f := reconcileCmd.Flags()
	f.StringVar(&reconcileFlags.orders, "orders", "", "Raw order table. Defaults to <output>/"+rawOrdersFile+".")
	f.StringVar(&reconcileFlags.reference, "reference", "", "Category reference table. Overrides REFERENCE_FILE.")
	f.StringVar(&reconcileFlags.mappings, "mappings", "", "json5 mapping file. Overrides MAPPINGS_FILE.")
	f.StringVar(&reconcileFlags.out, "out", "", "Normalized order table. Defaults to <output>/"+orderHistoryFile+".")
	f.BoolVar(&reconcileFlags.exportDB, "export-db", false, "Export the order history to Postgres. Defaults to DB_ENABLED.")
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Gives every order line a product code and a unit price.",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := reconcileFlags.orders
		if in == "" {
			in = outputPath(rawOrdersFile)
		}

		lines, err := storage.ReadOrderLines(in)
		if err != nil {
			return err
		}
		return reconcileOrders(cmd, lines)
	},
}

func reconcileOrders(cmd *cobra.Command, lines []models.OrderLine) error {
	ctx := cmd.Context()

	mappingsFile := cfg.Mappings.File
	if reconcileFlags.mappings != "" {
		mappingsFile = reconcileFlags.mappings
	}
	referenceFile := cfg.Output.ReferenceFile
	if reconcileFlags.reference != "" {
		referenceFile = reconcileFlags.reference
	}
	out := reconcileFlags.out
	if out == "" {
		out = outputPath(orderHistoryFile)
	}

	mappings, err := reconcile.LoadMappings(mappingsFile)
	if err != nil {
		return err
	}
	reference, err := storage.LoadCategoryReference(referenceFile)
	if err != nil {
		return err
	}

	history, err := reconcile.NewReconciler(mappings, log).Reconcile(reference, lines)
	if err != nil {
		return err
	}
	if err := storage.WriteOrderHistory(out, history); err != nil {
		return err
	}
	renderOrderHistory(cmd.OutOrStdout(), history, out)

	exportDB := cfg.Database.Enabled
	if cmd.Flags().Changed("export-db") {
		exportDB = reconcileFlags.exportDB
	}
	if !exportDB {
		return nil
	}

	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.NewExporter(db, log).ExportOrderHistory(ctx, history); err != nil {
		return fmt.Errorf("failed to export order history: %w", err)
	}
	return nil
}
