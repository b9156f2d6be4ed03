package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/scanner.yaml"

type Config struct {
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Database  DatabaseConfig  `yaml:"database"`
	Retention RetentionConfig `yaml:"retention"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	API       APIConfig       `yaml:"api"`
	S3        S3Config        `yaml:"s3"`
	LogPath   string          `yaml:"log_path"`
	LogLevel  string          `yaml:"log_level"`
}

type UpstreamConfig struct {
	BaseURL           string        `yaml:"base_url"`
	AuthKey           string        `yaml:"-"` // env only
	ProxyURL          string        `yaml:"proxy_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	PageSize          int           `yaml:"page_size"`
}

type ScannerConfig struct {
	Pages               int           `yaml:"pages"`
	InitialScanPages    int           `yaml:"initial_scan_pages"`
	Interval            time.Duration `yaml:"interval"`
	CycleDeadline       time.Duration `yaml:"cycle_deadline"`
	TransactionPages    int           `yaml:"transaction_pages"`
	TransactionInterval time.Duration `yaml:"transaction_interval"`
	Search              string        `yaml:"search"`
	Sort                string        `yaml:"sort"`
	ExpiryGrace         time.Duration `yaml:"expiry_grace"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	Path   string `yaml:"path"`
	URL    string `yaml:"-"`
}

type RetentionConfig struct {
	RawRetentionDays   int           `yaml:"raw_retention_days"`
	CompactionInterval time.Duration `yaml:"compaction_interval"`
	CompactionCron     string        `yaml:"compaction_cron"`
}

type AnalyticsConfig struct {
	UnderpriceThreshold  float64       `yaml:"underprice_threshold"`
	MinSamples           int           `yaml:"min_samples"`
	SampleWindow         time.Duration `yaml:"sample_window"`
	OverviewWindow       time.Duration `yaml:"overview_window"`
	ListingMaxAge        time.Duration `yaml:"listing_max_age"`
	ConfidenceSaturation int           `yaml:"confidence_saturation"`
	UndervaluedLimit     int           `yaml:"undervalued_limit"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

func (s S3Config) Enabled() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:           "https://api.donutsmp.net",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 60,
			MaxRetries:        4,
			InitialBackoff:    time.Second,
			MaxBackoff:        30 * time.Second,
		},
		Scanner: ScannerConfig{
			Pages:               3,
			InitialScanPages:    10,
			Interval:            30 * time.Second,
			CycleDeadline:       2 * time.Minute,
			TransactionPages:    10,
			TransactionInterval: 5 * time.Minute,
			ExpiryGrace:         time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "ah_scanner.db",
		},
		Retention: RetentionConfig{
			RawRetentionDays:   7,
			CompactionInterval: 24 * time.Hour,
		},
		Analytics: AnalyticsConfig{
			UnderpriceThreshold:  0.7,
			MinSamples:           5,
			SampleWindow:         7 * 24 * time.Hour,
			OverviewWindow:       24 * time.Hour,
			ListingMaxAge:        10 * time.Minute,
			ConfidenceSaturation: 50,
			UndervaluedLimit:     200,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":5000",
		},
		LogPath:  "daemon.log",
		LogLevel: "info",
	}
}

// Load reads .env, the YAML file at path (if present) and environment overrides, in that order.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Upstream.AuthKey = os.Getenv("DONUTSMP_AUTH_KEY")
	c.Upstream.BaseURL = strings.TrimRight(getEnv("DONUTSMP_BASE_URL", c.Upstream.BaseURL), "/")
	c.Upstream.ProxyURL = getEnv("DONUTSMP_PROXY", c.Upstream.ProxyURL)
	c.Upstream.RequestsPerMinute = getEnvInt("DONUTSMP_RPM", c.Upstream.RequestsPerMinute)

	c.Scanner.Pages = getEnvInt("DONUTSMP_PAGES", c.Scanner.Pages)
	c.Scanner.Search = getEnv("DONUTSMP_SEARCH", c.Scanner.Search)
	c.Scanner.Sort = getEnv("DONUTSMP_SORT", c.Scanner.Sort)

	c.Database.Driver = getEnv("DONUTSMP_DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DONUTSMP_DB_PATH", c.Database.Path)
	c.Database.URL = os.Getenv("DATABASE_URL")

	c.Retention.RawRetentionDays = getEnvInt("RAW_RETENTION_DAYS", c.Retention.RawRetentionDays)
	if hours := os.Getenv("COMPACTION_INTERVAL_HOURS"); hours != "" {
		h, err := strconv.Atoi(hours)
		if err != nil {
			return fmt.Errorf("COMPACTION_INTERVAL_HOURS: %w", err)
		}
		c.Retention.CompactionInterval = time.Duration(h) * time.Hour
	}
	c.Retention.CompactionCron = getEnv("COMPACTION_CRON", c.Retention.CompactionCron)

	c.API.Addr = getEnv("API_ADDR", c.API.Addr)
	c.LogPath = getEnv("LOG_PATH", c.LogPath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.S3.Bucket = getEnv("S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getEnv("S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	c.S3.SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")

	if v := os.Getenv("DONUTSMP_UNDERPRICE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DONUTSMP_UNDERPRICE_THRESHOLD: %w", err)
		}
		c.Analytics.UnderpriceThreshold = f
	}
	if v := os.Getenv("DONUTSMP_REQUEST_TIMEOUT"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("DONUTSMP_REQUEST_TIMEOUT: %w", err)
		}
		c.Upstream.Timeout = d
	}
	if v := os.Getenv("DONUTSMP_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("DONUTSMP_INTERVAL: %w", err)
		}
		c.Scanner.Interval = d
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if c.Upstream.RequestsPerMinute < 1 {
		errs = append(errs, errors.New("upstream.requests_per_minute must be at least 1"))
	}
	if c.Upstream.MaxRetries < 0 {
		errs = append(errs, errors.New("upstream.max_retries must not be negative"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	if c.Scanner.Pages < 1 {
		errs = append(errs, errors.New("scanner.pages must be at least 1"))
	}
	if c.Scanner.InitialScanPages < c.Scanner.Pages {
		c.Scanner.InitialScanPages = c.Scanner.Pages
	}
	if c.Scanner.TransactionPages < 1 || c.Scanner.TransactionPages > 10 {
		errs = append(errs, errors.New("scanner.transaction_pages must be within 1..10"))
	}
	if c.Scanner.Interval <= 0 || c.Scanner.TransactionInterval <= 0 {
		errs = append(errs, errors.New("scanner intervals must be positive"))
	}
	if c.Retention.RawRetentionDays < 0 {
		errs = append(errs, errors.New("retention.raw_retention_days must not be negative"))
	}
	if c.Retention.CompactionInterval <= 0 {
		errs = append(errs, errors.New("retention.compaction_interval must be positive"))
	}
	if t := c.Analytics.UnderpriceThreshold; t <= 0 || t >= 1 {
		errs = append(errs, fmt.Errorf("analytics.underprice_threshold %.2f must be within (0,1)", t))
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}

// String summarizes the config for logs. Credentials and the database URL are never printed.
func (c *Config) String() string {
	return fmt.Sprintf("upstream=%s rpm=%d auth=%s pages=%d interval=%s driver=%s retention=%dd threshold=%.2f api=%s s3=%t",
		c.Upstream.BaseURL, c.Upstream.RequestsPerMinute, mask(c.Upstream.AuthKey), c.Scanner.Pages, c.Scanner.Interval,
		c.Database.Driver, c.Retention.RawRetentionDays, c.Analytics.UnderpriceThreshold, c.API.Addr, c.S3.Enabled())
}

func mask(secret string) string {
	if secret == "" {
		return "unset"
	}
	return "set"
}

// RequireAuth fails when no upstream credential is configured.
func (c *Config) RequireAuth() error {
	if c.Upstream.AuthKey == "" {
		return errors.New("DONUTSMP_AUTH_KEY is not set")
	}
	return nil
}

// parseSeconds accepts a bare number of seconds or a Go duration string.
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
