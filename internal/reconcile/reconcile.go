package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/shopspring/decimal"
)

var ErrInvalidUnits = errors.New("order line has no units")

// CodeResolutionError lists the products that neither the category
// reference nor the name mapping could give a code.
type CodeResolutionError struct {
	Products []string
}

func (e *CodeResolutionError) Error() string {
	return fmt.Sprintf("no product code for %d product(s): %s", len(e.Products), strings.Join(e.Products, "; "))
}

// Stats counts how each line got its code.
type Stats struct {
	Lines      int
	FromRef    int
	FromNames  int
	Corrected  int
	Duplicates int
}

// AssignProductCodes gives every order line an integer product code and a
// unit price. Codes come from the first reference entry with the same name,
// then from the name mapping; a line left without a code fails the whole
// call. Codes are then corrected once and exact duplicates are dropped,
// keeping the first occurrence.
func AssignProductCodes(reference []models.ReferenceEntry, orders []models.OrderLine, m *Mappings) ([]models.NormalizedOrderLine, error) {
	lines, _, err := assign(reference, orders, m)
	return lines, err
}

func assign(reference []models.ReferenceEntry, orders []models.OrderLine, m *Mappings) ([]models.NormalizedOrderLine, Stats, error) {
	stats := Stats{}

	byName := make(map[string]int, len(reference))
	for _, ref := range reference {
		if _, ok := byName[ref.Product]; !ok {
			byName[ref.Product] = ref.ProductCode
		}
	}

	codes := make([]int, len(orders))
	unresolved := map[string]struct{}{}
	for i, line := range orders {
		if code, ok := byName[line.Product]; ok {
			codes[i] = code
			stats.FromRef++
			continue
		}
		if code, ok := m.NameToCode[line.Product]; ok {
			codes[i] = code
			stats.FromNames++
			continue
		}
		unresolved[line.Product] = struct{}{}
	}
	if len(unresolved) > 0 {
		products := make([]string, 0, len(unresolved))
		for p := range unresolved {
			products = append(products, p)
		}
		sort.Strings(products)
		return nil, stats, &CodeResolutionError{Products: products}
	}

	seen := make(map[lineKey]struct{}, len(orders))
	out := make([]models.NormalizedOrderLine, 0, len(orders))
	for i, line := range orders {
		if line.Units <= 0 {
			return nil, stats, fmt.Errorf("%w: %q in order %s has %d units", ErrInvalidUnits, line.Product, line.OrderNumber, line.Units)
		}

		code := m.Correct(codes[i])
		if code != codes[i] {
			stats.Corrected++
		}

		n := models.NormalizedOrderLine{
			OrderLine:    line,
			ProductCode:  code,
			PricePerUnit: line.Price.Div(decimal.NewFromInt(int64(line.Units))),
		}

		key := keyOf(n)
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}

	stats.Lines = len(out)
	return out, stats, nil
}

type lineKey struct {
	product      string
	units        int
	price        string
	orderNumber  string
	deliveryDate time.Time
	productCode  int
	pricePerUnit string
}

func keyOf(n models.NormalizedOrderLine) lineKey {
	return lineKey{
		product:      n.Product,
		units:        n.Units,
		price:        n.Price.String(),
		orderNumber:  n.OrderNumber,
		deliveryDate: n.DeliveryDate.UTC(),
		productCode:  n.ProductCode,
		pricePerUnit: n.PricePerUnit.String(),
	}
}

// Reconciler runs AssignProductCodes with a fixed set of mappings and logs
// how the codes were found.
type Reconciler struct {
	mappings *Mappings
	logger   *slog.Logger
}

func NewReconciler(m *Mappings, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		mappings: m,
		logger:   logger.With("component", "reconciler"),
	}
}

func (r *Reconciler) Reconcile(reference []models.ReferenceEntry, orders []models.OrderLine) ([]models.NormalizedOrderLine, error) {
	lines, stats, err := assign(reference, orders, r.mappings)
	if err != nil {
		var cre *CodeResolutionError
		if errors.As(err, &cre) {
			r.logger.Error("unresolved products", "count", len(cre.Products), "products", cre.Products)
		}
		return nil, err
	}

	r.logger.Info("order history reconciled",
		"mappings_version", r.mappings.Version,
		"input", len(orders),
		"output", stats.Lines,
		"from_reference", stats.FromRef,
		"from_names", stats.FromNames,
		"corrected", stats.Corrected,
		"duplicates", stats.Duplicates)
	return lines, nil
}
