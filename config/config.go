package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ListingsURL           string
	OutputFile            string
	ProcessedFile         string
	HTTPTimeoutSeconds    string
	MaxRetryAttempts      string
	PolitenessDelaySecs   string
	RunTimeoutMinutes     string
	RenderTimeoutSeconds  string
	LogLevel              string
	EnableDynamicFallback bool
	VerifyLinks           bool
	VerifyLinksLimit      string
}

// CollectorConfiguration holds the resolved settings for the collection pipeline
type CollectorConfiguration struct {
	ListingsURL        string        // Paginated recent-IPO index URL
	OutputFile         string        // XLSX workbook path
	ProcessedFile      string        // Persisted processed-set path
	HTTPRequestTimeout time.Duration // Maximum time to wait per fetch attempt
	MaxRetryAttempts   int           // Total attempts per page, including the first
	PolitenessDelay    time.Duration // Delay between consecutive page requests
	RunTimeout         time.Duration // Upper bound on a whole run
	RenderTimeout      time.Duration // Upper bound on a headless render of one page
}

// NewDefaultCollectorConfiguration returns production-ready default configuration
func NewDefaultCollectorConfiguration() *CollectorConfiguration {
	return &CollectorConfiguration{
		ListingsURL:        "https://www.screener.in/ipo/recent/",
		OutputFile:         "ipo_data.xlsx",
		ProcessedFile:      "processed_ipos.json",
		HTTPRequestTimeout: 10 * time.Second,
		MaxRetryAttempts:   3,
		PolitenessDelay:    2 * time.Second,
		RunTimeout:         15 * time.Minute,
		RenderTimeout:      30 * time.Second,
	}
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ListingsURL:           getEnv("LISTINGS_URL", "https://www.screener.in/ipo/recent/"),
		OutputFile:            getEnv("OUTPUT_FILE", "ipo_data.xlsx"),
		ProcessedFile:         getEnv("PROCESSED_FILE", "processed_ipos.json"),
		HTTPTimeoutSeconds:    getEnv("HTTP_TIMEOUT_SECONDS", "10"),
		MaxRetryAttempts:      getEnv("MAX_RETRY_ATTEMPTS", "3"),
		PolitenessDelaySecs:   getEnv("POLITENESS_DELAY_SECONDS", "2"),
		RunTimeoutMinutes:     getEnv("RUN_TIMEOUT_MINUTES", "15"),
		RenderTimeoutSeconds:  getEnv("RENDER_TIMEOUT_SECONDS", "30"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		EnableDynamicFallback: getEnvBool("ENABLE_DYNAMIC_FALLBACK", false),
		VerifyLinks:           getEnvBool("VERIFY_LINKS", false),
		VerifyLinksLimit:      getEnv("VERIFY_LINKS_LIMIT", "5"),
	}
}

// CollectorConfiguration resolves the env-backed settings into typed values,
// falling back to defaults on invalid input.
func (c *Config) CollectorConfiguration() *CollectorConfiguration {
	cfg := NewDefaultCollectorConfiguration()

	if c.ListingsURL != "" {
		cfg.ListingsURL = c.ListingsURL
	}
	if c.OutputFile != "" {
		cfg.OutputFile = c.OutputFile
	}
	if c.ProcessedFile != "" {
		cfg.ProcessedFile = c.ProcessedFile
	}

	cfg.HTTPRequestTimeout = secondsOrDefault("HTTP_TIMEOUT_SECONDS", c.HTTPTimeoutSeconds, cfg.HTTPRequestTimeout)
	cfg.PolitenessDelay = secondsOrDefault("POLITENESS_DELAY_SECONDS", c.PolitenessDelaySecs, cfg.PolitenessDelay)
	cfg.RenderTimeout = secondsOrDefault("RENDER_TIMEOUT_SECONDS", c.RenderTimeoutSeconds, cfg.RenderTimeout)

	if attempts, err := strconv.Atoi(c.MaxRetryAttempts); err == nil && attempts > 0 {
		cfg.MaxRetryAttempts = attempts
	} else if c.MaxRetryAttempts != "" {
		logrus.Warnf("Invalid MAX_RETRY_ATTEMPTS value: %s, using default %d", c.MaxRetryAttempts, cfg.MaxRetryAttempts)
	}

	if minutes, err := strconv.Atoi(c.RunTimeoutMinutes); err == nil && minutes > 0 {
		cfg.RunTimeout = time.Duration(minutes) * time.Minute
	} else if c.RunTimeoutMinutes != "" {
		logrus.Warnf("Invalid RUN_TIMEOUT_MINUTES value: %s, using default %v", c.RunTimeoutMinutes, cfg.RunTimeout)
	}

	return cfg
}

// GetVerifyLinksLimit returns the number of newly collected links to spot-check
func (c *Config) GetVerifyLinksLimit() int {
	limit, err := strconv.Atoi(c.VerifyLinksLimit)
	if err != nil || limit < 0 {
		logrus.Warnf("Invalid VERIFY_LINKS_LIMIT value: %s, using default 5", c.VerifyLinksLimit)
		return 5
	}
	return limit
}

func secondsOrDefault(name, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		logrus.Warnf("Invalid %s value: %s, using default %v", name, value, fallback)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %t", key, value, fallback)
		return fallback
	}
	return parsed
}
