package orders

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/shopspring/decimal"
)

var ErrMalformedOrder = errors.New("malformed order page")

const (
	selItemName     = "p.order-product-cell__name.subhead1-r"
	selItemUnits    = "span.order-product-cell__prepared-units.subhead1-r"
	selItemPrice    = "p.order-product-cell__price.subhead1-r"
	selDeliveryDate = "span.body1-b"
)

type Item struct {
	Product string
	Units   int
	Price   decimal.Decimal
}

// OrderDetail is the product list of one order and its raw delivery text.
type OrderDetail struct {
	Items    []Item
	Delivery string
}

// ParseOrderDetail reads the product list page of an order. Names, units and
// prices are matched by position and must have the same length.
func ParseOrderDetail(r io.Reader) (*OrderDetail, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order page: %w", err)
	}

	names := texts(doc.Find(selItemName))
	units := texts(doc.Find(selItemUnits))
	prices := texts(doc.Find(selItemPrice))

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no products", ErrMalformedOrder)
	}
	if len(units) != len(names) || len(prices) != len(names) {
		return nil, fmt.Errorf("%w: %d names, %d units, %d prices",
			ErrMalformedOrder, len(names), len(units), len(prices))
	}

	delivery := strings.TrimSpace(doc.Find(selDeliveryDate).First().Text())
	if delivery == "" {
		return nil, fmt.Errorf("%w: no delivery date", ErrMalformedOrder)
	}

	detail := &OrderDetail{Items: make([]Item, 0, len(names)), Delivery: delivery}
	for i, name := range names {
		n, err := parseUnits(units[i])
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformedOrder, i+1, err)
		}
		price, err := models.ParseEuro(prices[i])
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: invalid price %q: %v", ErrMalformedOrder, i+1, prices[i], err)
		}
		detail.Items = append(detail.Items, Item{Product: name, Units: n, Price: price})
	}
	return detail, nil
}

// Lines broadcasts the order number and delivery date to every item.
func (d *OrderDetail) Lines(orderNumber string, delivered time.Time) []models.OrderLine {
	lines := make([]models.OrderLine, 0, len(d.Items))
	for _, item := range d.Items {
		lines = append(lines, models.OrderLine{
			Product:      item.Product,
			Units:        item.Units,
			Price:        item.Price,
			OrderNumber:  orderNumber,
			DeliveryDate: delivered,
		})
	}
	return lines
}

// parseUnits reads "2 ud." style text.
func parseUnits(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty units")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid units %q", text)
	}
	return n, nil
}

// orderID takes the identifier out of an order cell such as "Pedido 12345678".
func orderID(text string) (string, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", fmt.Errorf("%w: order cell %q has no identifier", ErrMalformedOrder, text)
	}
	return fields[1], nil
}

func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}
