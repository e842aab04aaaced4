package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/orders"
	"github.com/maltedev/mercadona-scraper/internal/ratelimit"
)

type Config struct {
	Browser  BrowserConfig
	Crawl    CrawlConfig
	Orders   OrdersConfig
	Mappings MappingsConfig
	Output   OutputConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type CrawlConfig struct {
	BaseURL      string
	PostalCode   string
	Attempts     int
	WaitTimeout  time.Duration
	ProductWait  time.Duration
	MaxBackSteps int

	MinWait          time.Duration
	MaxWait          time.Duration
	ErrorMinWait     time.Duration
	ErrorMaxWait     time.Duration
	ErrorStep        time.Duration
	RateLimitPenalty time.Duration
	BackoffCeiling   time.Duration
}

type OrdersConfig struct {
	Email    string
	Password string
	StoreURL string
	// Deliveries without a year in their text get LateYear from
	// LateMonthFrom on and EarlyYear before it.
	YearRuleEnabled bool
	LateMonthFrom   int
	LateYear        int
	EarlyYear       int
}

type MappingsConfig struct {
	// File is a json5 mapping file; empty uses the built-in tables.
	File string
}

type OutputConfig struct {
	Dir           string
	ReferenceFile string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	policy := ratelimit.DefaultPolicy()
	years := orders.DefaultYearRule()

	cfg := &Config{
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 10*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "es-ES,es;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Madrid"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "es-ES"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Crawl: CrawlConfig{
			BaseURL:          getEnvOrDefault("MERCADONA_BASE_URL", "https://www.mercadona.es/"),
			PostalCode:       getEnvOrDefault("MERCADONA_POSTAL_CODE", "46001"),
			Attempts:         getIntOrDefault("CRAWL_ATTEMPTS", 4),
			WaitTimeout:      getDurationOrDefault("CRAWL_WAIT_TIMEOUT", 10*time.Second),
			ProductWait:      getDurationOrDefault("CRAWL_PRODUCT_WAIT", 2*time.Second),
			MaxBackSteps:     getIntOrDefault("CRAWL_MAX_BACK_STEPS", 5),
			MinWait:          getDurationOrDefault("CRAWL_MIN_WAIT", policy.MinWait),
			MaxWait:          getDurationOrDefault("CRAWL_MAX_WAIT", policy.MaxWait),
			ErrorMinWait:     getDurationOrDefault("CRAWL_ERROR_MIN_WAIT", policy.ErrorMinWait),
			ErrorMaxWait:     getDurationOrDefault("CRAWL_ERROR_MAX_WAIT", policy.ErrorMaxWait),
			ErrorStep:        getDurationOrDefault("CRAWL_ERROR_STEP", policy.ErrorStep),
			RateLimitPenalty: getDurationOrDefault("CRAWL_RATE_LIMIT_PENALTY", policy.RateLimitPenalty),
			BackoffCeiling:   getDurationOrDefault("CRAWL_BACKOFF_CEILING", policy.Ceiling),
		},
		Orders: OrdersConfig{
			Email:           getEnvOrDefault("MERCADONA_USER", ""),
			Password:        getEnvOrDefault("MERCADONA_PASSWORD", ""),
			StoreURL:        getEnvOrDefault("MERCADONA_STORE_URL", "https://tienda.mercadona.es/"),
			YearRuleEnabled: getBoolOrDefault("ORDERS_YEAR_RULE", true),
			LateMonthFrom:   getIntOrDefault("ORDERS_LATE_MONTH_FROM", int(years.LateMonthFrom)),
			LateYear:        getIntOrDefault("ORDERS_LATE_YEAR", years.LateYear),
			EarlyYear:       getIntOrDefault("ORDERS_EARLY_YEAR", years.EarlyYear),
		},
		Mappings: MappingsConfig{
			File: getEnvOrDefault("MAPPINGS_FILE", ""),
		},
		Output: OutputConfig{
			Dir:           getEnvOrDefault("OUTPUT_DIR", "data"),
			ReferenceFile: getEnvOrDefault("REFERENCE_FILE", "data/category_reference.csv"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "mercadona"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 4),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:mercadona_crawl"),
			MaxLen:   int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
		},
		Server: ServerConfig{
			Port:           getIntOrDefault("SERVER_PORT", 8080),
			AllowedOrigins: getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if !isPostalCode(c.Crawl.PostalCode) {
		return fmt.Errorf("MERCADONA_POSTAL_CODE must be five digits, got %q", c.Crawl.PostalCode)
	}

	if c.Crawl.Attempts < 1 {
		return fmt.Errorf("CRAWL_ATTEMPTS must be at least 1")
	}

	if err := c.Crawl.Policy().Validate(); err != nil {
		return err
	}

	if c.Orders.YearRuleEnabled && (c.Orders.LateMonthFrom < 1 || c.Orders.LateMonthFrom > 12) {
		return fmt.Errorf("ORDERS_LATE_MONTH_FROM must be between 1 and 12")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}

	if c.Database.Enabled && c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn or error")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	return nil
}

func (c CrawlConfig) Policy() ratelimit.Policy {
	return ratelimit.Policy{
		MinWait:          c.MinWait,
		MaxWait:          c.MaxWait,
		ErrorMinWait:     c.ErrorMinWait,
		ErrorMaxWait:     c.ErrorMaxWait,
		ErrorStep:        c.ErrorStep,
		RateLimitPenalty: c.RateLimitPenalty,
		Ceiling:          c.BackoffCeiling,
	}
}

// YearRule returns nil when the rule is disabled.
func (c OrdersConfig) YearRule() *orders.YearRule {
	if !c.YearRuleEnabled {
		return nil
	}
	return &orders.YearRule{
		LateMonthFrom: time.Month(c.LateMonthFrom),
		LateYear:      c.LateYear,
		EarlyYear:     c.EarlyYear,
	}
}

func isPostalCode(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
