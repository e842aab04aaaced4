package reconcile

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var delivered = time.Date(2022, 11, 14, 0, 0, 0, 0, time.UTC)

func line(product string, units int, price string) models.OrderLine {
	return models.OrderLine{
		Product:      product,
		Units:        units,
		Price:        decimal.RequireFromString(price),
		OrderNumber:  "1234567",
		DeliveryDate: delivered,
	}
}

func testMappings() *Mappings {
	return &Mappings{
		Version:         "test",
		NameToCode:      map[string]int{"Manzana Royal Gala": 3175, "Galletas mini Oreo": 14030},
		CodeCorrections: map[int]int{4717: 4718, 4740: 4718, 27559: 26997},
	}
}

func testReference() []models.ReferenceEntry {
	return []models.ReferenceEntry{
		{Product: "Aceite de oliva virgen extra Hacendado", Category: "Aceite, especias y salsas", Subcategory: "Aceite, vinagre y sal", ProductCode: 4717},
		{Product: "Aceite de oliva virgen extra Hacendado", Category: "Aceite, especias y salsas", Subcategory: "Aceite, vinagre y sal", ProductCode: 9999},
		{Product: "Leche desnatada sin lactosa Hacendado", Category: "Huevos, leche y mantequilla", Subcategory: "Leche y bebidas vegetales", ProductCode: 10731},
		{Product: "Refresco Coca-Cola Zero Zero", Category: "Agua y refrescos", Subcategory: "Refresco de cola", ProductCode: 27559},
	}
}

// decimalEqual lets cmp compare decimals by value.
var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestAssignProductCodes(t *testing.T) {
	orders := []models.OrderLine{
		line("Aceite de oliva virgen extra Hacendado", 2, "8.34"),
		line("Leche desnatada sin lactosa Hacendado", 6, "5.34"),
		line("Manzana Royal Gala", 1, "2.10"),
		line("Refresco Coca-Cola Zero Zero", 3, "2.85"),
	}

	got, err := AssignProductCodes(testReference(), orders, testMappings())
	require.NoError(t, err)

	want := []models.NormalizedOrderLine{
		{OrderLine: orders[0], ProductCode: 4718, PricePerUnit: decimal.RequireFromString("4.17")},
		{OrderLine: orders[1], ProductCode: 10731, PricePerUnit: decimal.RequireFromString("0.89")},
		{OrderLine: orders[2], ProductCode: 3175, PricePerUnit: decimal.RequireFromString("2.1")},
		{OrderLine: orders[3], ProductCode: 26997, PricePerUnit: decimal.RequireFromString("0.95")},
	}
	if diff := cmp.Diff(want, got, decimalEqual); diff != "" {
		t.Errorf("AssignProductCodes mismatch (-want +got):\n%s", diff)
	}
}

func TestAssignProductCodesCorrection(t *testing.T) {
	orders := []models.OrderLine{
		line("Aceite A", 1, "4.17"),
		line("Aceite B", 1, "4.17"),
	}
	reference := []models.ReferenceEntry{
		{Product: "Aceite A", ProductCode: 4717},
		{Product: "Aceite B", ProductCode: 4718},
	}

	got, err := AssignProductCodes(reference, orders, testMappings())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 4718, got[0].ProductCode)
	assert.Equal(t, 4718, got[1].ProductCode)
}

func TestAssignProductCodesUnresolvedNamesFail(t *testing.T) {
	orders := []models.OrderLine{
		line("Manzana Royal Gala", 1, "2.10"),
		line("Turrón de Jijona", 1, "3.00"),
		line("Polvorones", 1, "2.00"),
		line("Turrón de Jijona", 2, "6.00"),
	}

	got, err := AssignProductCodes(testReference(), orders, testMappings())

	assert.Nil(t, got)
	var cre *CodeResolutionError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, []string{"Polvorones", "Turrón de Jijona"}, cre.Products)
	assert.Contains(t, err.Error(), "2 product(s)")
}

func TestAssignProductCodesEveryRowHasCode(t *testing.T) {
	orders := []models.OrderLine{
		line("Aceite de oliva virgen extra Hacendado", 1, "4.17"),
		line("Galletas mini Oreo", 2, "3.00"),
	}

	got, err := AssignProductCodes(testReference(), orders, testMappings())
	require.NoError(t, err)
	for _, l := range got {
		assert.NotZero(t, l.ProductCode, l.Product)
	}
}

func TestAssignProductCodesDeduplicates(t *testing.T) {
	orders := []models.OrderLine{
		line("Manzana Royal Gala", 1, "2.10"),
		line("Leche desnatada sin lactosa Hacendado", 6, "5.34"),
		line("Manzana Royal Gala", 1, "2.1"),
		line("Manzana Royal Gala", 2, "4.20"),
	}

	got, err := AssignProductCodes(testReference(), orders, testMappings())
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "Manzana Royal Gala", got[0].Product)
	assert.Equal(t, "Leche desnatada sin lactosa Hacendado", got[1].Product)
	assert.Equal(t, 2, got[2].Units)
}

func TestAssignProductCodesIdempotent(t *testing.T) {
	orders := []models.OrderLine{
		line("Aceite de oliva virgen extra Hacendado", 2, "8.34"),
		line("Refresco Coca-Cola Zero Zero", 3, "2.85"),
	}
	m := testMappings()

	once, err := AssignProductCodes(testReference(), orders, m)
	require.NoError(t, err)

	// feed the corrected codes back in as if they came from the reference
	reference := make([]models.ReferenceEntry, 0, len(once))
	again := make([]models.OrderLine, 0, len(once))
	for _, l := range once {
		reference = append(reference, models.ReferenceEntry{Product: l.Product, ProductCode: l.ProductCode})
		again = append(again, l.OrderLine)
	}
	twice, err := AssignProductCodes(reference, again, m)
	require.NoError(t, err)

	if diff := cmp.Diff(once, twice, decimalEqual); diff != "" {
		t.Errorf("second pass changed the result (-once +twice):\n%s", diff)
	}
}

func TestAssignProductCodesRejectsZeroUnits(t *testing.T) {
	_, err := AssignProductCodes(testReference(), []models.OrderLine{line("Manzana Royal Gala", 0, "2.10")}, testMappings())
	assert.ErrorIs(t, err, ErrInvalidUnits)
}

func TestAssignProductCodesEmpty(t *testing.T) {
	got, err := AssignProductCodes(nil, nil, testMappings())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReconciler(t *testing.T) {
	r := NewReconciler(testMappings(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := r.Reconcile(testReference(), []models.OrderLine{
		line("Aceite de oliva virgen extra Hacendado", 2, "8.34"),
		line("Aceite de oliva virgen extra Hacendado", 2, "8.34"),
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = r.Reconcile(nil, []models.OrderLine{line("Desconocido", 1, "1")})
	var cre *CodeResolutionError
	assert.ErrorAs(t, err, &cre)
}

func TestAssignStats(t *testing.T) {
	_, stats, err := assign(testReference(), []models.OrderLine{
		line("Aceite de oliva virgen extra Hacendado", 2, "8.34"),
		line("Aceite de oliva virgen extra Hacendado", 2, "8.34"),
		line("Manzana Royal Gala", 1, "2.10"),
	}, testMappings())
	require.NoError(t, err)

	assert.Equal(t, Stats{Lines: 2, FromRef: 2, FromNames: 1, Corrected: 2, Duplicates: 1}, stats)
}
