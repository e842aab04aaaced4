package config

import (
	"testing"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/orders"
	"github.com/maltedev/mercadona-scraper/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "es-ES", cfg.Browser.Locale)
	assert.Equal(t, 4, cfg.Crawl.Attempts)
	assert.Equal(t, ratelimit.DefaultPolicy(), cfg.Crawl.Policy())
	assert.Equal(t, orders.DefaultYearRule(), cfg.Orders.YearRule())
	assert.Empty(t, cfg.Mappings.File)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "stream:mercadona_crawl", cfg.Redis.Stream)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MERCADONA_POSTAL_CODE", "28001")
	t.Setenv("MERCADONA_USER", "ana@example.com")
	t.Setenv("MERCADONA_PASSWORD", "secret")
	t.Setenv("CRAWL_ATTEMPTS", "6")
	t.Setenv("CRAWL_MIN_WAIT", "1s")
	t.Setenv("CRAWL_MAX_WAIT", "2s")
	t.Setenv("ORDERS_YEAR_RULE", "false")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BROWSER_HEADLESS", "not-a-bool")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "28001", cfg.Crawl.PostalCode)
	assert.Equal(t, "ana@example.com", cfg.Orders.Email)
	assert.Equal(t, 6, cfg.Crawl.Attempts)
	assert.Equal(t, time.Second, cfg.Crawl.Policy().MinWait)
	assert.Nil(t, cfg.Orders.YearRule())
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	// unparsable values fall back to the default
	assert.True(t, cfg.Browser.Headless)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "postal code", mutate: func(c *Config) { c.Crawl.PostalCode = "4600" }, errMsg: "MERCADONA_POSTAL_CODE"},
		{name: "postal code letters", mutate: func(c *Config) { c.Crawl.PostalCode = "46a01" }, errMsg: "MERCADONA_POSTAL_CODE"},
		{name: "attempts", mutate: func(c *Config) { c.Crawl.Attempts = 0 }, errMsg: "CRAWL_ATTEMPTS"},
		{name: "policy", mutate: func(c *Config) { c.Crawl.MinWait = time.Hour }, errMsg: "min wait"},
		{name: "late month", mutate: func(c *Config) { c.Orders.LateMonthFrom = 13 }, errMsg: "ORDERS_LATE_MONTH_FROM"},
		{name: "output dir", mutate: func(c *Config) { c.Output.Dir = "" }, errMsg: "OUTPUT_DIR"},
		{name: "db conns", mutate: func(c *Config) { c.Database.Enabled = true; c.Database.MaxConns = 0 }, errMsg: "DB_MAX_CONNS"},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 70000 }, errMsg: "SERVER_PORT"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, errMsg: "LOG_LEVEL"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, errMsg: "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestPolicyErrorWraps(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Crawl.BackoffCeiling = 0
	assert.ErrorIs(t, cfg.Validate(), ratelimit.ErrInvalidPolicy)
}
