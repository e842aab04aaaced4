package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/browser"
)

const DefaultBaseURL = "https://www.mercadona.es/"

// gridPathFragment is part of every product grid URL and of no detail URL.
const gridPathFragment = "categories"

// Shop selectors. They follow the site markup and are the first thing to
// check when a whole run starts failing.
const (
	selPostalCodeInput  = `input[aria-label="Código postal"]`
	selPostalCodeSubmit = `input.postal-code-form__button`
	selCategoriesLink   = `a:text-is("Categorías")`
	selProductCell      = `div[data-test='product-cell']`
	selProductGrid      = `.product-cell`
	selAcceptCookies    = `button:has-text("Aceptar todas")`
	selCategoryHeader   = `span.category-menu__header`
	selSubcategoryLink  = `.category-item__link`
	selRateLimitAck     = `button:has-text("Entendido")`

	selDetailDescription  = `.private-product-detail__description`
	selDetailName         = `h1.title2-r.private-product-detail__description`
	selDetailType         = `span.headline1-r:nth-child(1)`
	selDetailVolume       = `span.headline1-r:nth-child(2)`
	selDetailPricePerUnit = `span.headline1-r:nth-child(3)`
	selDetailPrice        = `p.product-price__unit-price.large-b`
	selDetailUnit         = `p.product-price__extra-price.title1-r`
	selDetailCategory     = `span.subhead1-r`
	selDetailSubcategory  = `span.subhead1-sb`
)

func selCategoryLabel(category string) string {
	return fmt.Sprintf("label:text-is(%s)", strconv.Quote(category))
}

func selSubcategoryButton(subcategory string) string {
	return fmt.Sprintf("button:text-is(%s)", strconv.Quote(subcategory))
}

type Options struct {
	BaseURL     string
	PostalCode  string
	WaitTimeout time.Duration
	// ProductWait is spent half before and half after leaving a product page.
	ProductWait time.Duration
	// MaxBackSteps bounds the back/escape loop that returns to the grid.
	MaxBackSteps int
}

func DefaultOptions() Options {
	return Options{
		BaseURL:      DefaultBaseURL,
		WaitTimeout:  10 * time.Second,
		MaxBackSteps: 5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BaseURL == "" {
		o.BaseURL = d.BaseURL
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = d.WaitTimeout
	}
	if o.MaxBackSteps <= 0 {
		o.MaxBackSteps = d.MaxBackSteps
	}
	return o
}

// enterStore submits the postal code, opens the category browser and waits
// for the product grid.
func enterStore(s browser.Session, opts Options, logger *slog.Logger) error {
	if err := s.Navigate(opts.BaseURL); err != nil {
		return err
	}

	input, err := s.FindElement(selPostalCodeInput)
	if err != nil {
		return fmt.Errorf("failed to find postal code input: %w", err)
	}
	if err := input.SendKeys(opts.PostalCode); err != nil {
		return fmt.Errorf("failed to type postal code: %w", err)
	}
	submit, err := s.FindElement(selPostalCodeSubmit)
	if err != nil {
		return fmt.Errorf("failed to find postal code submit: %w", err)
	}
	if err := submit.Click(); err != nil {
		return fmt.Errorf("failed to submit postal code: %w", err)
	}

	link, err := browser.WaitForElement(s, selCategoriesLink, opts.WaitTimeout)
	if err != nil {
		return fmt.Errorf("failed to find categories link: %w", err)
	}
	if err := link.Click(); err != nil {
		return fmt.Errorf("failed to open categories: %w", err)
	}

	if _, err := browser.WaitForElement(s, selProductCell, opts.WaitTimeout); err != nil {
		return fmt.Errorf("product grid did not load: %w", err)
	}

	acceptCookies(s, logger)
	return nil
}

// acceptCookies dismisses the cookie banner. Sessions sharing a browser
// context only see it once.
func acceptCookies(s browser.Session, logger *slog.Logger) {
	button, err := s.FindElement(selAcceptCookies)
	if err != nil {
		logger.Debug("no cookie banner")
		return
	}
	if err := button.Click(); err != nil {
		logger.Warn("failed to accept cookies", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
