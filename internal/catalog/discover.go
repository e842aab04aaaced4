package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/mercadona-scraper/internal/browser"
	"github.com/maltedev/mercadona-scraper/internal/models"
)

// Discoverer reads the two-level category tree. It never retries; a missing
// element is returned to the caller.
type Discoverer struct {
	opener browser.Opener
	opts   Options
	logger *slog.Logger
}

func NewDiscoverer(opener browser.Opener, opts Options, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		opener: opener,
		opts:   opts.withDefaults(),
		logger: logger.With("component", "taxonomy_discoverer"),
	}
}

// Categories returns the top-level category names in page order.
func (d *Discoverer) Categories(ctx context.Context) ([]string, error) {
	s, err := d.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer s.Close()

	if err := enterStore(s, d.opts, d.logger); err != nil {
		return nil, err
	}

	headers, err := s.FindAllElements(selCategoryHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	categories, err := texts(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}

	d.logger.Info("categories discovered", "count", len(categories))
	return categories, nil
}

// Subcategories returns the subcategory names of category in page order.
func (d *Discoverer) Subcategories(ctx context.Context, category string) ([]string, error) {
	s, err := d.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer s.Close()

	if err := enterStore(s, d.opts, d.logger); err != nil {
		return nil, err
	}

	label, err := browser.WaitForElement(s, selCategoryLabel(category), d.opts.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to find category %q: %w", category, err)
	}
	if err := label.Click(); err != nil {
		return nil, fmt.Errorf("failed to select category %q: %w", category, err)
	}

	links, err := browser.WaitForElements(s, selSubcategoryLink, d.opts.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to find subcategories of %q: %w", category, err)
	}

	subcategories, err := texts(links)
	if err != nil {
		return nil, fmt.Errorf("failed to read subcategories of %q: %w", category, err)
	}

	d.logger.Info("subcategories discovered", "category", category, "count", len(subcategories))
	return subcategories, nil
}

// Leaves walks every category and returns all (category, subcategory)
// pairs in discovery order.
func (d *Discoverer) Leaves(ctx context.Context) ([]models.CategoryLeaf, error) {
	categories, err := d.Categories(ctx)
	if err != nil {
		return nil, err
	}

	var leaves []models.CategoryLeaf
	for _, category := range categories {
		subcategories, err := d.Subcategories(ctx, category)
		if err != nil {
			return nil, err
		}
		for _, sub := range subcategories {
			leaves = append(leaves, models.CategoryLeaf{Category: category, Subcategory: sub})
		}
	}

	return leaves, nil
}

func texts(elements []browser.Element) ([]string, error) {
	out := make([]string, 0, len(elements))
	for _, el := range elements {
		text, err := el.Text()
		if err != nil {
			return nil, err
		}
		out = append(out, strings.TrimSpace(text))
	}
	return out, nil
}
