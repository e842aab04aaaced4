package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/maltedev/mercadona-scraper/internal/models"
)

const noMissingLine = "No missing subcategories."

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderSummary(w io.Writer, run *crawlRun) {
	s := run.Result.Summary

	t := newTable(w)
	t.SetTitle("Crawl %s", s.RunID)
	t.AppendRows([]table.Row{
		{"Subcategories", s.Leaves},
		{"Succeeded", s.Succeeded},
		{"Missing", s.Missing},
		{"Products", s.Rows},
		{"Dropped (no code)", s.Dropped},
		{"Errors", s.Errors},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Products file", run.SnapshotPath},
		{"Missing file", run.MissingPath},
	})
	t.Render()
}

// renderMissing prints the missing leaves as their own table, or an explicit
// line when there are none.
func renderMissing(w io.Writer, missing []models.MissingLeaf) {
	if len(missing) == 0 {
		fmt.Fprintln(w, noMissingLine)
		return
	}

	t := newTable(w)
	t.SetTitle("Missing subcategories")
	t.AppendHeader(table.Row{"#", "Category", "Subcategory"})
	for i, m := range missing {
		t.AppendRow(table.Row{i + 1, m.Category, m.Subcategory})
	}
	t.Render()
}

func renderLeaves(w io.Writer, leaves []models.CategoryLeaf) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Category", "Subcategory"})
	for i, l := range leaves {
		t.AppendRow(table.Row{i + 1, l.Category, l.Subcategory})
	}
	t.AppendFooter(table.Row{"", "Total", len(leaves)})
	t.Render()
}

func renderNames(w io.Writer, header string, names []string) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", header})
	for i, n := range names {
		t.AppendRow(table.Row{i + 1, n})
	}
	t.Render()
}

func renderOrderHistory(w io.Writer, lines []models.NormalizedOrderLine, file string) {
	orders := map[string]struct{}{}
	codes := map[int]struct{}{}
	for _, l := range lines {
		orders[l.OrderNumber] = struct{}{}
		codes[l.ProductCode] = struct{}{}
	}

	t := newTable(w)
	t.SetTitle("Order history")
	t.AppendRows([]table.Row{
		{"Orders", len(orders)},
		{"Lines", len(lines)},
		{"Products", len(codes)},
		{"File", file},
	})
	t.Render()
}
