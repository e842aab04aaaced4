package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/shopspring/decimal"
)

var productHeader = []string{
	"product",
	"product_type",
	"product_volume",
	"product_price_per_unit",
	"product_price",
	"product_unit",
	"product_category",
	"product_subcategory",
	"product_url",
	"product_code",
	"collected_timestamp",
}

var missingHeader = []string{"category", "subcategory"}

var referenceColumns = []string{"product", "product_category", "product_subcategory", "product_code"}

func WriteProducts(filename string, rows []models.ProductRecord) error {
	records := make([][]string, 0, len(rows))
	for i := range rows {
		p := &rows[i]
		records = append(records, []string{
			p.Name,
			p.Type,
			p.Volume,
			p.PricePerUnitLabel,
			p.UnitPriceText(),
			p.UnitLabel,
			p.Category,
			p.Subcategory,
			p.URL,
			p.Code,
			p.CollectedAt.Format(TimestampLayout),
		})
	}
	return writeTable(filename, productHeader, records)
}

// ReadProducts loads a product table written by WriteProducts.
func ReadProducts(filename string) ([]models.ProductRecord, error) {
	t, err := readTable(filename, productHeader...)
	if err != nil {
		return nil, fmt.Errorf("failed to read products from %s: %w", filename, err)
	}

	rows := make([]models.ProductRecord, 0, len(t.records))
	for i, rec := range t.records {
		p := models.ProductRecord{
			Name:              t.get(rec, "product"),
			Type:              t.get(rec, "product_type"),
			Volume:            t.get(rec, "product_volume"),
			PricePerUnitLabel: t.get(rec, "product_price_per_unit"),
			UnitLabel:         t.get(rec, "product_unit"),
			Category:          t.get(rec, "product_category"),
			Subcategory:       t.get(rec, "product_subcategory"),
			URL:               t.get(rec, "product_url"),
			Code:              t.get(rec, "product_code"),
		}

		if price := t.get(rec, "product_price"); price != models.Unavailable && price != "" {
			d, err := decimal.NewFromString(price)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid product_price %q: %w", i+2, price, err)
			}
			p.UnitPrice = decimal.NewNullDecimal(d)
		}

		collected, err := time.ParseInLocation(TimestampLayout, t.get(rec, "collected_timestamp"), time.Local)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid collected_timestamp: %w", i+2, err)
		}
		p.CollectedAt = collected

		rows = append(rows, p)
	}
	return rows, nil
}

func WriteMissing(filename string, missing []models.MissingLeaf) error {
	records := make([][]string, 0, len(missing))
	for _, m := range missing {
		records = append(records, []string{m.Category, m.Subcategory})
	}
	return writeTable(filename, missingHeader, records)
}

// ReadMissing loads a missing-leaves report, e.g. to retry only those leaves.
func ReadMissing(filename string) ([]models.CategoryLeaf, error) {
	t, err := readTable(filename, missingHeader...)
	if err != nil {
		return nil, fmt.Errorf("failed to read missing leaves from %s: %w", filename, err)
	}

	leaves := make([]models.CategoryLeaf, 0, len(t.records))
	for _, rec := range t.records {
		leaves = append(leaves, models.CategoryLeaf{
			Category:    t.get(rec, "category"),
			Subcategory: t.get(rec, "subcategory"),
		})
	}
	return leaves, nil
}

// LoadCategoryReference builds the product → category lookup from a previous
// catalog export. Rows are cleaned, codes must be integers, and exact
// duplicates over the four kept columns are removed keeping file order.
func LoadCategoryReference(filename string) ([]models.ReferenceEntry, error) {
	t, err := readTable(filename, referenceColumns...)
	if err != nil {
		return nil, fmt.Errorf("failed to read category reference from %s: %w", filename, err)
	}

	seen := make(map[models.ReferenceEntry]struct{}, len(t.records))
	entries := make([]models.ReferenceEntry, 0, len(t.records))
	for i, rec := range t.records {
		raw := strings.TrimSpace(t.get(rec, "product_code"))
		code, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: product_code %q is not an integer: %w", i+2, raw, err)
		}

		entry := models.ReferenceEntry{
			Product:     t.get(rec, "product"),
			Category:    models.CleanCategory(t.get(rec, "product_category")),
			Subcategory: t.get(rec, "product_subcategory"),
			ProductCode: code,
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}
