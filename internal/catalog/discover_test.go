package catalog

import (
	"context"
	"testing"

	"github.com/maltedev/mercadona-scraper/internal/browser"
	"github.com/maltedev/mercadona-scraper/internal/browser/browsertest"
	"github.com/maltedev/mercadona-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscovererCategories(t *testing.T) {
	sh := &shop{
		categories: []string{"Aceite, especias y salsas", "Agua y refrescos", "Aperitivos"},
		products:   threeProducts(),
	}
	opener := sh.opener()

	categories, err := NewDiscoverer(opener, testOptions(), discardLogger()).Categories(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Aceite, especias y salsas", "Agua y refrescos", "Aperitivos"}, categories)
	require.Len(t, opener.Opened, 1)
	assert.True(t, opener.Opened[0].Closed)
}

func TestDiscovererSubcategoriesAreTrimmed(t *testing.T) {
	sh := &shop{
		categories: []string{"Agua y refrescos"},
		subcategories: map[string][]string{
			"Agua y refrescos": {"Agua", "Isotónico y energético", "Refresco de cola"},
		},
		products: threeProducts(),
	}

	subs, err := NewDiscoverer(sh.opener(), testOptions(), discardLogger()).Subcategories(context.Background(), "Agua y refrescos")

	require.NoError(t, err)
	assert.Equal(t, []string{"Agua", "Isotónico y energético", "Refresco de cola"}, subs)
}

func TestDiscovererUnknownCategory(t *testing.T) {
	sh := &shop{categories: []string{"Agua y refrescos"}, products: threeProducts()}

	_, err := NewDiscoverer(sh.opener(), testOptions(), discardLogger()).Subcategories(context.Background(), "Bodega")

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestDiscovererLeavesKeepsDiscoveryOrder(t *testing.T) {
	sh := &shop{
		categories: []string{"Aceite, especias y salsas", "Agua y refrescos"},
		subcategories: map[string][]string{
			"Aceite, especias y salsas": {"Aceite, vinagre y sal", "Especias"},
			"Agua y refrescos":          {"Agua"},
		},
		products: threeProducts(),
	}
	opener := sh.opener()

	leaves, err := NewDiscoverer(opener, testOptions(), discardLogger()).Leaves(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []models.CategoryLeaf{
		{Category: "Aceite, especias y salsas", Subcategory: "Aceite, vinagre y sal"},
		{Category: "Aceite, especias y salsas", Subcategory: "Especias"},
		{Category: "Agua y refrescos", Subcategory: "Agua"},
	}, leaves)
	assert.Len(t, opener.Opened, 3)
}

func TestDiscovererStoreEntryFails(t *testing.T) {
	sh := &shop{categories: []string{"Agua y refrescos"}, products: threeProducts()}
	opener := sh.opener()
	build := opener.Build
	opener.Build = func(n int) (*browsertest.Session, error) {
		s, err := build(n)
		if err == nil {
			s.Set(selPostalCodeInput)
		}
		return s, err
	}

	_, err := NewDiscoverer(opener, testOptions(), discardLogger()).Categories(context.Background())

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}
