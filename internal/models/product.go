package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Unavailable is stored in place of any detail-page field that could not be read.
const Unavailable = "Not available"

// CategoryLeaf is one (category, subcategory) pair of the shop taxonomy.
type CategoryLeaf struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

func (l CategoryLeaf) String() string {
	return l.Category + " > " + l.Subcategory
}

// MissingLeaf is a leaf whose retry budget ran out.
type MissingLeaf struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

type ProductRecord struct {
	Name              string              `json:"product"`
	Type              string              `json:"product_type"`
	Volume            string              `json:"product_volume"`
	PricePerUnitLabel string              `json:"product_price_per_unit"`
	UnitPrice         decimal.NullDecimal `json:"product_price"`
	UnitLabel         string              `json:"product_unit"`
	Category          string              `json:"product_category"`
	Subcategory       string              `json:"product_subcategory"`
	URL               string              `json:"product_url"`
	Code              string              `json:"product_code"`
	CollectedAt       time.Time           `json:"collected_timestamp"`
}

// UnitPriceText renders the unit price the way it is written to the tables.
func (p *ProductRecord) UnitPriceText() string {
	if !p.UnitPrice.Valid {
		return Unavailable
	}
	return p.UnitPrice.Decimal.String()
}

// ProductCodeFromURL returns the code segment of a product detail URL such as
// https://tienda.mercadona.es/product/4718/aceite-oliva. ok is false when the URL
// has no such segment.
func ProductCodeFromURL(url string) (string, bool) {
	parts := strings.Split(url, "/")
	if len(parts) < 5 {
		return "", false
	}
	code := strings.TrimSpace(parts[4])
	if i := strings.IndexAny(code, "?#"); i >= 0 {
		code = code[:i]
	}
	if code == "" {
		return "", false
	}
	return code, true
}
