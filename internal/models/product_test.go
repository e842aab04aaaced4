package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProductCodeFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
		ok       bool
	}{
		{"Detail page", "https://tienda.mercadona.es/product/4718/aceite-oliva-virgen-extra", "4718", true},
		{"Trailing query", "https://tienda.mercadona.es/product/31003?x=1", "31003", true},
		{"Grid page", "https://tienda.mercadona.es/categories", "", false},
		{"Empty segment", "https://tienda.mercadona.es/product//slug", "", false},
		{"Empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := ProductCodeFromURL(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, code)
		})
	}
}

func TestUnitPriceText(t *testing.T) {
	p := &ProductRecord{}
	assert.Equal(t, Unavailable, p.UnitPriceText())

	p.UnitPrice = decimal.NewNullDecimal(decimal.RequireFromString("2.35"))
	assert.Equal(t, "2.35", p.UnitPriceText())
}
