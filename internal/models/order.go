package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine is one product line of a past order. DeliveryDate is shared by
// every line of the same order.
type OrderLine struct {
	Product      string          `json:"product"`
	Units        int             `json:"units"`
	Price        decimal.Decimal `json:"price"`
	OrderNumber  string          `json:"order_number"`
	DeliveryDate time.Time       `json:"fecha"`
}

type NormalizedOrderLine struct {
	OrderLine
	ProductCode  int             `json:"product_code"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// ReferenceEntry is one row of the category reference built from a previous
// catalog export.
type ReferenceEntry struct {
	Product     string `json:"product"`
	Category    string `json:"product_category"`
	Subcategory string `json:"product_subcategory"`
	ProductCode int    `json:"product_code"`
}

// RunSummary describes a finished crawl run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Leaves     int           `json:"leaves"`
	Succeeded  int           `json:"succeeded"`
	Missing    int           `json:"missing"`
	Rows       int           `json:"rows"`
	Dropped    int           `json:"dropped"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
}
