package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/browser"
	"github.com/maltedev/mercadona-scraper/internal/models"
)

const (
	DefaultBaseURL  = "https://www.mercadona.es/"
	DefaultStoreURL = "https://tienda.mercadona.es/"
)

var ErrMissingCredentials = errors.New("order history needs an email and a password")

const (
	selPostalCodeInput  = `input[aria-label="Código postal"]`
	selPostalCodeSubmit = `input.postal-code-form__button`
	selAcceptCookies    = `button:has-text("Aceptar todas")`
	selUserMenu         = `button[class="drop-down__trigger"]`
	selIdentify         = `a[href="/?authenticate-user="]`
	selEmail            = `input[name="email"]`
	selNext             = `button[type="submit"]`
	selPassword         = `input[name="password"]`
	selLogin            = `button[data-test="do-login"]`
	selAccount          = `.account__user-name`
	selMyOrders         = `a[href="/user-area/orders"]`
	selOrderID          = `span[class="order-cell__id footnote1-r"]`
)

type Credentials struct {
	Email    string
	Password string
}

type Options struct {
	BaseURL     string
	StoreURL    string
	PostalCode  string
	WaitTimeout time.Duration
	// YearRule dates deliveries whose text has no year. Nil makes them fail.
	YearRule *YearRule
}

func DefaultOptions() Options {
	return Options{
		BaseURL:     DefaultBaseURL,
		StoreURL:    DefaultStoreURL,
		WaitTimeout: 10 * time.Second,
		YearRule:    DefaultYearRule(),
	}
}

// Extractor pulls the order history of one account. Any failure aborts the
// whole pull; there is no retry.
type Extractor struct {
	opener browser.Opener
	opts   Options
	logger *slog.Logger
}

func NewExtractor(opener browser.Opener, opts Options, logger *slog.Logger) *Extractor {
	d := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = d.BaseURL
	}
	if opts.StoreURL == "" {
		opts.StoreURL = d.StoreURL
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = d.WaitTimeout
	}
	return &Extractor{
		opener: opener,
		opts:   opts,
		logger: logger.With("component", "order_history"),
	}
}

// OrderURL is the product list page of an order.
func (e *Extractor) OrderURL(id string) string {
	return strings.TrimRight(e.opts.StoreURL, "/") + "/user-area/orders/" + id + "?products"
}

// History logs in and returns every line of every listed order, orders in
// page order and lines in the order shown on each order page.
func (e *Extractor) History(ctx context.Context, creds Credentials) ([]models.OrderLine, error) {
	if creds.Email == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}

	s, err := e.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer s.Close()

	if err := e.login(s, creds); err != nil {
		return nil, err
	}

	ids, err := e.orderIDs(s)
	if err != nil {
		return nil, err
	}
	e.logger.Info("orders found", "count", len(ids))

	var lines []models.OrderLine
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		orderLines, err := e.order(s, id)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		lines = append(lines, orderLines...)
		e.logger.Debug("order read", "order", id, "lines", len(orderLines))
	}

	e.logger.Info("order history retrieved", "orders", len(ids), "lines", len(lines))
	return lines, nil
}

func (e *Extractor) login(s browser.Session, creds Credentials) error {
	if err := s.Navigate(e.opts.BaseURL); err != nil {
		return err
	}

	if err := e.fill(s, selPostalCodeInput, e.opts.PostalCode); err != nil {
		return err
	}
	if err := e.click(s, selPostalCodeSubmit); err != nil {
		return err
	}

	if button, err := browser.WaitForElement(s, selAcceptCookies, e.opts.WaitTimeout); err == nil {
		if err := button.Click(); err != nil {
			e.logger.Warn("failed to accept cookies", "error", err)
		}
	}

	steps := []func() error{
		func() error { return e.click(s, selUserMenu) },
		func() error { return e.click(s, selIdentify) },
		func() error { return e.fill(s, selEmail, creds.Email) },
		func() error { return e.click(s, selNext) },
		func() error { return e.fill(s, selPassword, creds.Password) },
		func() error { return e.click(s, selLogin) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("failed to log in: %w", err)
		}
	}

	if err := e.click(s, selAccount); err != nil {
		return fmt.Errorf("login not confirmed: %w", err)
	}
	if err := e.click(s, selMyOrders); err != nil {
		return fmt.Errorf("failed to open orders: %w", err)
	}

	e.logger.Info("logged in")
	return nil
}

func (e *Extractor) orderIDs(s browser.Session) ([]string, error) {
	cells, err := browser.WaitForElements(s, selOrderID, e.opts.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	ids := make([]string, 0, len(cells))
	for _, cell := range cells {
		text, err := cell.Text()
		if err != nil {
			return nil, fmt.Errorf("failed to read order cell: %w", err)
		}
		id, err := orderID(text)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Extractor) order(s browser.Session, id string) ([]models.OrderLine, error) {
	if err := s.Navigate(e.OrderURL(id)); err != nil {
		return nil, err
	}
	if _, err := browser.WaitForElements(s, selItemName, e.opts.WaitTimeout); err != nil {
		return nil, fmt.Errorf("products did not load: %w", err)
	}

	html, err := s.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	detail, err := ParseOrderDetail(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	delivered, err := ParseDeliveryDate(detail.Delivery, e.opts.YearRule)
	if err != nil {
		return nil, err
	}

	return detail.Lines(id, delivered), nil
}

func (e *Extractor) click(s browser.Session, selector string) error {
	el, err := browser.WaitForElement(s, selector, e.opts.WaitTimeout)
	if err != nil {
		return err
	}
	return el.Click()
}

func (e *Extractor) fill(s browser.Session, selector, text string) error {
	el, err := browser.WaitForElement(s, selector, e.opts.WaitTimeout)
	if err != nil {
		return err
	}
	return el.SendKeys(text)
}
