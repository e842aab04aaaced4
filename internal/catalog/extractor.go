package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/browser"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrRateLimited     = errors.New("rate limited by shop")
	ErrEmptyGrid       = errors.New("product grid is empty")
	ErrGridNotRestored = errors.New("could not return to product grid")
	ErrDetailNotOpened = errors.New("product detail did not open")
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTransientFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// LeafResult is the outcome of one attempt at a leaf. Rows is only set on
// success; a failed attempt keeps nothing.
type LeafResult struct {
	Outcome Outcome
	Rows    []models.ProductRecord
	Count   int
	Dropped int
	Err     error
}

// LeafExtractor is what the orchestrator needs from an extractor.
type LeafExtractor interface {
	ExtractLeaf(ctx context.Context, leaf models.CategoryLeaf) LeafResult
}

// Extractor walks the product grid of a leaf in a fresh session.
//
// Cells are captured once when the grid loads and visited by index, so a
// grid that reorders while it is being walked yields skipped or repeated
// products. Runs are not reproducible under site-side reordering.
type Extractor struct {
	opener browser.Opener
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func NewExtractor(opener browser.Opener, opts Options, logger *slog.Logger) *Extractor {
	return &Extractor{
		opener: opener,
		opts:   opts.withDefaults(),
		logger: logger.With("component", "leaf_extractor"),
		now:    time.Now,
	}
}

func (e *Extractor) ExtractLeaf(ctx context.Context, leaf models.CategoryLeaf) LeafResult {
	s, err := e.opener.Open(ctx)
	if err != nil {
		return LeafResult{Outcome: OutcomeTransientFailure, Err: fmt.Errorf("failed to open session: %w", err)}
	}
	defer s.Close()

	rows, dropped, err := e.walk(ctx, s, leaf)
	switch {
	case errors.Is(err, ErrRateLimited):
		return LeafResult{Outcome: OutcomeRateLimited, Err: err}
	case err != nil:
		return LeafResult{Outcome: OutcomeTransientFailure, Err: err}
	}

	return LeafResult{
		Outcome: OutcomeSuccess,
		Rows:    rows,
		Count:   len(rows),
		Dropped: dropped,
	}
}

func (e *Extractor) walk(ctx context.Context, s browser.Session, leaf models.CategoryLeaf) ([]models.ProductRecord, int, error) {
	if err := enterStore(s, e.opts, e.logger); err != nil {
		return nil, 0, err
	}
	if err := e.selectLeaf(s, leaf); err != nil {
		return nil, 0, err
	}

	if _, err := browser.WaitForElements(s, selProductGrid, e.opts.WaitTimeout); err != nil {
		return nil, 0, fmt.Errorf("products of %s did not load: %w", leaf, err)
	}
	cells, err := s.FindAllElements(selProductCell)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products of %s: %w", leaf, err)
	}
	if len(cells) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrEmptyGrid, leaf)
	}

	gridURL := s.CurrentURL()
	if err := cells[0].Click(); err != nil {
		return nil, 0, fmt.Errorf("failed to open first product: %w", err)
	}

	var (
		rows    []models.ProductRecord
		dropped int
	)
	for i := range cells {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		if err := cells[i].ScrollIntoView(); err != nil {
			return nil, 0, fmt.Errorf("failed to scroll to product %d: %w", i+1, err)
		}
		if err := s.WaitUntil(browser.ElementPresent(selDetailDescription), e.opts.WaitTimeout); err != nil {
			return nil, 0, fmt.Errorf("%w: product %d of %s: %v", ErrDetailNotOpened, i+1, leaf, err)
		}

		record, ok := e.readProduct(s)
		if ok {
			rows = append(rows, record)
			e.logger.Debug("product scraped", "leaf", leaf.String(), "index", i+1, "product", record.Name)
		} else {
			dropped++
			e.logger.Warn("product dropped, no product code in url",
				"leaf", leaf.String(), "index", i+1, "url", s.CurrentURL())
		}

		if err := sleep(ctx, e.opts.ProductWait/2); err != nil {
			return nil, 0, err
		}
		if err := e.returnToGrid(s); err != nil {
			return nil, 0, err
		}
		if rateLimited(s) {
			return nil, 0, fmt.Errorf("%w: after %d products of %s", ErrRateLimited, i+1, leaf)
		}
		if err := sleep(ctx, e.opts.ProductWait/2); err != nil {
			return nil, 0, err
		}

		if i == len(cells)-1 {
			break
		}
		if err := cells[i+1].Click(); err != nil {
			return nil, 0, fmt.Errorf("failed to open product %d: %w", i+2, err)
		}
		// the acknowledge dialog can keep the detail from opening at all
		if err := s.WaitUntil(browser.URLChanged(gridURL), e.opts.WaitTimeout); err != nil {
			if rateLimited(s) {
				return nil, 0, fmt.Errorf("%w: product %d of %s did not open", ErrRateLimited, i+2, leaf)
			}
			return nil, 0, fmt.Errorf("%w: product %d of %s: %v", ErrDetailNotOpened, i+2, leaf, err)
		}
		if rateLimited(s) {
			return nil, 0, fmt.Errorf("%w: after %d products of %s", ErrRateLimited, i+1, leaf)
		}
	}

	return rows, dropped, nil
}

func (e *Extractor) selectLeaf(s browser.Session, leaf models.CategoryLeaf) error {
	label, err := browser.WaitForElement(s, selCategoryLabel(leaf.Category), e.opts.WaitTimeout)
	if err != nil {
		return fmt.Errorf("failed to find category %q: %w", leaf.Category, err)
	}
	if err := label.Click(); err != nil {
		return fmt.Errorf("failed to select category %q: %w", leaf.Category, err)
	}

	button, err := browser.WaitForElement(s, selSubcategoryButton(leaf.Subcategory), e.opts.WaitTimeout)
	if err != nil {
		return fmt.Errorf("failed to find subcategory %q: %w", leaf.Subcategory, err)
	}
	if err := button.Click(); err != nil {
		return fmt.Errorf("failed to select subcategory %q: %w", leaf.Subcategory, err)
	}
	return nil
}

// readProduct reads the open detail page. Each field falls back to
// models.Unavailable on its own; ok is false only when no product code can be
// taken from the URL.
func (e *Extractor) readProduct(s browser.Session) (models.ProductRecord, bool) {
	url := s.CurrentURL()
	code, ok := models.ProductCodeFromURL(url)
	if !ok {
		return models.ProductRecord{}, false
	}

	record := models.ProductRecord{
		Name:              strings.TrimSpace(browser.TextOf(s, selDetailName, models.Unavailable)),
		Type:              strings.TrimSpace(browser.TextOf(s, selDetailType, models.Unavailable)),
		Volume:            strings.TrimSpace(browser.TextOf(s, selDetailVolume, models.Unavailable)),
		PricePerUnitLabel: models.Unavailable,
		UnitLabel:         models.Unavailable,
		Category:          models.Unavailable,
		Subcategory:       strings.TrimSpace(browser.TextOf(s, selDetailSubcategory, models.Unavailable)),
		URL:               url,
		Code:              code,
		CollectedAt:       e.now(),
	}

	if text, err := textOf(s, selDetailPricePerUnit); err == nil {
		record.PricePerUnitLabel = models.CleanPricePerUnit(text)
	}
	if text, err := textOf(s, selDetailUnit); err == nil {
		record.UnitLabel = models.CleanUnit(text)
	}
	if text, err := textOf(s, selDetailCategory); err == nil {
		record.Category = models.CleanCategory(text)
	}
	if text, err := textOf(s, selDetailPrice); err == nil {
		if price, err := models.ParseEuro(text); err == nil {
			record.UnitPrice = decimal.NewNullDecimal(price)
		}
	}

	return record, true
}

// rateLimited reports whether the shop's "Entendido" dialog is up.
func rateLimited(s browser.Session) bool {
	_, err := s.FindElement(selRateLimitAck)
	return err == nil
}

// returnToGrid backs out of the detail view until the grid URL is showing.
func (e *Extractor) returnToGrid(s browser.Session) error {
	onGrid := browser.URLContains(gridPathFragment)
	for step := 0; ; step++ {
		ok, err := onGrid(s)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if step >= e.opts.MaxBackSteps {
			return fmt.Errorf("%w after %d steps, at %s", ErrGridNotRestored, step, s.CurrentURL())
		}
		if err := s.Back(); err != nil {
			return err
		}
		if err := s.PressEscape(); err != nil {
			return err
		}
	}
}

func textOf(s browser.Session, selector string) (string, error) {
	el, err := s.FindElement(selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}
