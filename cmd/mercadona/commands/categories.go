package commands

import (
	"github.com/maltedev/mercadona-scraper/internal/catalog"
	"github.com/spf13/cobra"
)

var categoriesLeaves bool

func init() {
	categoriesCmd.Flags().BoolVar(&categoriesLeaves, "leaves", false, "List every category/subcategory pair.")
	rootCmd.AddCommand(categoriesCmd)
}

var categoriesCmd = &cobra.Command{
	Use:   "categories [category]",
	Short: "Lists the shop categories, or the subcategories of one category.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		b, err := openBrowser()
		if err != nil {
			return err
		}
		defer b.Close()

		if categoriesLeaves {
			var only []string
			if len(args) == 1 {
				only = args
			}
			leaves, err := discoverLeaves(ctx, b, only)
			if err != nil {
				return err
			}
			renderLeaves(cmd.OutOrStdout(), leaves)
			return nil
		}

		d := catalog.NewDiscoverer(b, catalogOptions(), log)
		if len(args) == 1 {
			subs, err := d.Subcategories(ctx, args[0])
			if err != nil {
				return err
			}
			renderNames(cmd.OutOrStdout(), "Subcategory", subs)
			return nil
		}

		categories, err := d.Categories(ctx)
		if err != nil {
			return err
		}
		renderNames(cmd.OutOrStdout(), "Category", categories)
		return nil
	},
}
