package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CleanCategory strips the breadcrumb marker the shop appends to category names.
func CleanCategory(s string) string {
	s = strings.ReplaceAll(s, " >", "")
	s = strings.Trim(s, "> ")
	return s
}

func CleanPricePerUnit(s string) string {
	s = strings.ReplaceAll(s, "| ", "")
	s = strings.ReplaceAll(s, "|", "")
	return strings.TrimSpace(s)
}

// CleanUnit turns "/ud." into "ud".
func CleanUnit(s string) string {
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, ".", "")
	return strings.TrimSpace(s)
}

// ParseEuro parses shop prices such as "1,35 €" or "2,10".
func ParseEuro(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, "€", "")
	s = strings.TrimSpace(s)
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return d, nil
}
