package catalog

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/maltedev/mercadona-scraper/internal/browser/browsertest"
)

const (
	testBaseURL = "https://tienda.test/"
	testGridURL = "https://tienda.test/categories/112"
)

type testProduct struct {
	code   string
	name   string
	price  string
	fields map[string]string
}

// shop scripts a browsertest.Session that behaves like the store front for a
// single leaf.
type shop struct {
	categories    []string
	subcategories map[string][]string
	products      []testProduct
	// rateLimitAfter shows the acknowledge dialog once this many products
	// have been opened; zero disables it.
	rateLimitAfter int
	// noCodeAt opens the detail of this 1-based product at a URL without a
	// code; zero disables it.
	noCodeAt int
	opened   int
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{BaseURL: testBaseURL, PostalCode: "46001"}
}

func (sh *shop) session() *browsertest.Session {
	s := browsertest.New()
	s.Text(selPostalCodeInput, "")
	s.Text(selPostalCodeSubmit, "Aceptar")
	s.Text(selCategoriesLink, "Categorías")
	s.Text(selAcceptCookies, "Aceptar todas")

	var cells []*browsertest.Element
	for i := range sh.products {
		i := i
		cells = append(cells, &browsertest.Element{
			Value: sh.products[i].name,
			OnClick: func() error {
				sh.open(s, i)
				return nil
			},
		})
	}
	s.Set(selProductCell, cells...)
	s.Text(selProductGrid, "")

	var headers []*browsertest.Element
	for _, c := range sh.categories {
		c := c
		headers = append(headers, &browsertest.Element{Value: c})
		s.Set(selCategoryLabel(c), &browsertest.Element{
			Value: c,
			OnClick: func() error {
				var links []*browsertest.Element
				for _, sub := range sh.subcategories[c] {
					sub := sub
					links = append(links, &browsertest.Element{Value: " " + sub + " "})
					s.Set(selSubcategoryButton(sub), &browsertest.Element{
						Value: sub,
						OnClick: func() error {
							s.Go(testGridURL)
							return nil
						},
					})
				}
				s.Set(selSubcategoryLink, links...)
				return nil
			},
		})
	}
	s.Set(selCategoryHeader, headers...)

	return s
}

func (sh *shop) open(s *browsertest.Session, i int) {
	sh.opened++
	p := sh.products[i]
	if sh.noCodeAt == i+1 {
		s.Go("https://tienda.test/product")
	} else {
		s.Go(fmt.Sprintf("https://tienda.test/product/%s/slug", p.code))
	}

	s.Text(selDetailDescription, p.name)
	s.Text(selDetailName, p.name)
	defaults := map[string]string{
		selDetailType:         "Botella",
		selDetailVolume:       "1 L",
		selDetailPricePerUnit: "| 4,17 €/L",
		selDetailUnit:         "/ud.",
		selDetailCategory:     "Aceite, especias y salsas >",
		selDetailSubcategory:  "Aceite, vinagre y sal",
	}
	for sel, v := range defaults {
		s.Text(sel, v)
	}
	for sel, v := range p.fields {
		if v == "" {
			s.Set(sel)
			continue
		}
		s.Text(sel, v)
	}
	if p.price == "" {
		s.Set(selDetailPrice)
	} else {
		s.Text(selDetailPrice, p.price)
	}

	if sh.rateLimitAfter > 0 && sh.opened > sh.rateLimitAfter {
		s.Text(selRateLimitAck, "Entendido")
	}
}

func (sh *shop) opener() *browsertest.Opener {
	return &browsertest.Opener{
		Build: func(int) (*browsertest.Session, error) {
			sh.opened = 0
			return sh.session(), nil
		},
	}
}
