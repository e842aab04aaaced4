package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/browser"
	"github.com/maltedev/mercadona-scraper/internal/browser/browsertest"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var oilLeaf = models.CategoryLeaf{Category: "Aceite, especias y salsas", Subcategory: "Aceite, vinagre y sal"}

func threeProducts() []testProduct {
	return []testProduct{
		{code: "4718", name: "Aceite de oliva virgen extra Hacendado", price: "4,17 €"},
		{code: "4241", name: "Vinagre de vino blanco Hacendado", price: "0,55 €"},
		{code: "34180", name: "Sal fina marina Hacendado", price: "0,30 €"},
	}
}

func TestExtractLeafSuccess(t *testing.T) {
	sh := &shop{
		categories:    []string{oilLeaf.Category},
		subcategories: map[string][]string{oilLeaf.Category: {oilLeaf.Subcategory}},
		products:      threeProducts(),
	}
	opener := sh.opener()
	collected := time.Date(2023, 2, 1, 10, 0, 0, 0, time.UTC)

	e := NewExtractor(opener, testOptions(), discardLogger())
	e.now = func() time.Time { return collected }

	result := e.ExtractLeaf(context.Background(), oilLeaf)

	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 3, result.Count)
	assert.Zero(t, result.Dropped)
	require.Len(t, result.Rows, 3)

	first := result.Rows[0]
	assert.Equal(t, "Aceite de oliva virgen extra Hacendado", first.Name)
	assert.Equal(t, "4718", first.Code)
	assert.Equal(t, "4.17", first.UnitPriceText())
	assert.Equal(t, "4,17 €/L", first.PricePerUnitLabel)
	assert.Equal(t, "ud", first.UnitLabel)
	assert.Equal(t, "Aceite, especias y salsas", first.Category)
	assert.Equal(t, "Aceite, vinagre y sal", first.Subcategory)
	assert.Equal(t, "https://tienda.test/product/4718/slug", first.URL)
	assert.Equal(t, collected, first.CollectedAt)

	assert.Equal(t, []string{"4718", "4241", "34180"}, []string{result.Rows[0].Code, result.Rows[1].Code, result.Rows[2].Code})

	require.Len(t, opener.Opened, 1)
	s := opener.Opened[0]
	assert.True(t, s.Closed)
	assert.Equal(t, []string{testBaseURL}, s.Navigations)
	assert.Equal(t, testGridURL, s.CurrentURL())
	assert.Equal(t, 3, s.Escapes)
	assert.Equal(t, []string{"46001"}, s.Elements[selPostalCodeInput][0].Keys)
}

func TestExtractLeafMissingFieldsAreUnavailable(t *testing.T) {
	products := threeProducts()
	products[1].price = ""
	products[1].fields = map[string]string{
		selDetailVolume:   "",
		selDetailCategory: "",
	}
	products[2].price = "consultar"

	sh := &shop{
		categories:    []string{oilLeaf.Category},
		subcategories: map[string][]string{oilLeaf.Category: {oilLeaf.Subcategory}},
		products:      products,
	}

	result := NewExtractor(sh.opener(), testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, result.Rows, 3)

	second := result.Rows[1]
	assert.Equal(t, models.Unavailable, second.UnitPriceText())
	assert.Equal(t, models.Unavailable, second.Volume)
	assert.Equal(t, models.Unavailable, second.Category)
	assert.Equal(t, "Botella", second.Type)
	assert.Equal(t, "4241", second.Code)

	assert.False(t, result.Rows[2].UnitPrice.Valid)
}

func TestExtractLeafDropsRowWithoutCode(t *testing.T) {
	sh := &shop{
		categories:    []string{oilLeaf.Category},
		subcategories: map[string][]string{oilLeaf.Category: {oilLeaf.Subcategory}},
		products:      threeProducts(),
		noCodeAt:      2,
	}

	result := NewExtractor(sh.opener(), testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, "4718", result.Rows[0].Code)
	assert.Equal(t, "34180", result.Rows[1].Code)
}

func TestExtractLeafRateLimited(t *testing.T) {
	sh := &shop{
		categories:     []string{oilLeaf.Category},
		subcategories:  map[string][]string{oilLeaf.Category: {oilLeaf.Subcategory}},
		products:       threeProducts(),
		rateLimitAfter: 1,
	}

	result := NewExtractor(sh.opener(), testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

	assert.Equal(t, OutcomeRateLimited, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrRateLimited)
	assert.Empty(t, result.Rows)
	assert.Zero(t, result.Count)
}

func TestExtractLeafRateLimitedOnGrid(t *testing.T) {
	t.Run("dialog keeps the next product from opening", func(t *testing.T) {
		sh := &shop{
			categories:    []string{oilLeaf.Category},
			subcategories: map[string][]string{oilLeaf.Category: {oilLeaf.Subcategory}},
			products:      threeProducts(),
		}
		opener := &browsertest.Opener{
			Build: func(int) (*browsertest.Session, error) {
				s := sh.session()
				s.Elements[selProductCell][1].OnClick = func() error {
					s.Text(selRateLimitAck, "Entendido")
					return nil
				}
				return s, nil
			},
		}

		result := NewExtractor(opener, testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

		assert.Equal(t, OutcomeRateLimited, result.Outcome)
		assert.ErrorIs(t, result.Err, ErrRateLimited)
		assert.NotErrorIs(t, result.Err, ErrDetailNotOpened)
		assert.Empty(t, result.Rows)
	})

	t.Run("dialog after the last product", func(t *testing.T) {
		sh := &shop{
			categories:    []string{oilLeaf.Category},
			subcategories: map[string][]string{oilLeaf.Category: {oilLeaf.Subcategory}},
			products:      threeProducts()[:1],
		}
		opener := &browsertest.Opener{
			Build: func(int) (*browsertest.Session, error) {
				s := sh.session()
				s.Elements[selProductCell][0].OnClick = func() error {
					sh.open(s, 0)
					s.Text(selRateLimitAck, "Entendido")
					return nil
				}
				return s, nil
			},
		}

		result := NewExtractor(opener, testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

		assert.Equal(t, OutcomeRateLimited, result.Outcome)
		assert.Zero(t, result.Count)
	})
}

func TestExtractLeafTransientFailure(t *testing.T) {
	t.Run("unknown subcategory", func(t *testing.T) {
		sh := &shop{
			categories:    []string{oilLeaf.Category},
			subcategories: map[string][]string{oilLeaf.Category: {"Otra"}},
			products:      threeProducts(),
		}

		result := NewExtractor(sh.opener(), testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

		assert.Equal(t, OutcomeTransientFailure, result.Outcome)
		assert.ErrorIs(t, result.Err, browser.ErrElementNotFound)
	})

	t.Run("failure mid-grid discards partial rows", func(t *testing.T) {
		sh := &shop{
			categories:    []string{oilLeaf.Category},
			subcategories: map[string][]string{oilLeaf.Category: {oilLeaf.Subcategory}},
			products:      threeProducts(),
		}
		opener := &browsertest.Opener{
			Build: func(int) (*browsertest.Session, error) {
				s := sh.session()
				cells := s.Elements[selProductCell]
				cells[2].OnClick = func() error { return errors.New("element detached") }
				return s, nil
			},
		}

		result := NewExtractor(opener, testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

		assert.Equal(t, OutcomeTransientFailure, result.Outcome)
		assert.Empty(t, result.Rows)
		assert.True(t, opener.Opened[0].Closed)
	})

	t.Run("empty grid", func(t *testing.T) {
		sh := &shop{
			categories:    []string{oilLeaf.Category},
			subcategories: map[string][]string{oilLeaf.Category: {oilLeaf.Subcategory}},
			products:      threeProducts(),
		}
		opener := &browsertest.Opener{
			Build: func(int) (*browsertest.Session, error) {
				s := sh.session()
				label := s.Elements[selCategoryLabel(oilLeaf.Category)][0]
				selectCategory := label.OnClick
				label.OnClick = func() error {
					// the leaf itself has no products
					s.Set(selProductCell)
					return selectCategory()
				}
				return s, nil
			},
		}
		result := NewExtractor(opener, testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

		assert.Equal(t, OutcomeTransientFailure, result.Outcome)
		assert.ErrorIs(t, result.Err, ErrEmptyGrid)
	})

	t.Run("session cannot be opened", func(t *testing.T) {
		opener := &browsertest.Opener{
			Build: func(int) (*browsertest.Session, error) { return nil, errors.New("browser crashed") },
		}
		result := NewExtractor(opener, testOptions(), discardLogger()).ExtractLeaf(context.Background(), oilLeaf)

		assert.Equal(t, OutcomeTransientFailure, result.Outcome)
	})
}

func TestReturnToGridIsBounded(t *testing.T) {
	s := browsertest.New()
	s.Go("https://tienda.test/product/1/a")

	e := NewExtractor(nil, Options{MaxBackSteps: 3}, discardLogger())
	err := e.returnToGrid(s)

	assert.ErrorIs(t, err, ErrGridNotRestored)
	assert.Equal(t, 3, s.Escapes)

	s.Go(testGridURL)
	s.Escapes = 0
	require.NoError(t, e.returnToGrid(s))
	assert.Zero(t, s.Escapes)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "rate_limited", OutcomeRateLimited.String())
	assert.Equal(t, "transient_failure", OutcomeTransientFailure.String())
}
