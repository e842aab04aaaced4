package storage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/shopspring/decimal"
)

// DateLayout is used for delivery dates.
const DateLayout = "2006-01-02"

var orderHeader = []string{"product", "units", "price", "order_number", "fecha"}

var orderHistoryHeader = append(append([]string{}, orderHeader...), "product_code", "price_per_unit")

func orderRecord(l models.OrderLine) []string {
	return []string{
		l.Product,
		strconv.Itoa(l.Units),
		l.Price.String(),
		l.OrderNumber,
		l.DeliveryDate.Format(DateLayout),
	}
}

// WriteOrderLines writes the raw order table as pulled from the account.
func WriteOrderLines(filename string, lines []models.OrderLine) error {
	records := make([][]string, 0, len(lines))
	for _, l := range lines {
		records = append(records, orderRecord(l))
	}
	return writeTable(filename, orderHeader, records)
}

func ReadOrderLines(filename string) ([]models.OrderLine, error) {
	t, err := readTable(filename, orderHeader...)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders from %s: %w", filename, err)
	}

	lines := make([]models.OrderLine, 0, len(t.records))
	for i, rec := range t.records {
		units, err := strconv.Atoi(t.get(rec, "units"))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid units: %w", i+2, err)
		}
		price, err := decimal.NewFromString(t.get(rec, "price"))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid price: %w", i+2, err)
		}
		date, err := time.Parse(DateLayout, t.get(rec, "fecha"))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid fecha: %w", i+2, err)
		}

		lines = append(lines, models.OrderLine{
			Product:      t.get(rec, "product"),
			Units:        units,
			Price:        price,
			OrderNumber:  t.get(rec, "order_number"),
			DeliveryDate: date,
		})
	}
	return lines, nil
}

// WriteOrderHistory writes the normalized order table.
func WriteOrderHistory(filename string, lines []models.NormalizedOrderLine) error {
	records := make([][]string, 0, len(lines))
	for _, l := range lines {
		records = append(records, append(orderRecord(l.OrderLine),
			strconv.Itoa(l.ProductCode),
			l.PricePerUnit.String(),
		))
	}
	return writeTable(filename, orderHistoryHeader, records)
}
