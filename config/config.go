package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "sjsage522/hotissueworker/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Database configuration
	DBDriver      string
	DBHost        string
	DBPort        int
	DBUser        string
	DBPassword    string
	DBName        string
	DBTablePrefix string
	DBConnTimeout time.Duration

	// Redis configuration (ingest events)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration (rate limit blocks)
	MemcacheAddr   string
	RateLimitBlock time.Duration

	// Scheduling
	CrawlSchedule string
	CrawlTimezone string
	RunAtStartup  bool

	// Crawl tuning
	PageMissThreshold int
	PostMissThreshold int
	MaxCrawlDuration  time.Duration
	RunTimeout        time.Duration
	AdapterCooldown   time.Duration

	// Output
	DataDir string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "3306"))
	dbTimeout, _ := strconv.Atoi(getEnv("DB_CONNECT_TIMEOUT_SECONDS", "10"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "10000"))
	blockSeconds, _ := strconv.Atoi(getEnv("RATE_LIMIT_BLOCK_SECONDS", "500"))
	pageMiss, _ := strconv.Atoi(getEnv("PAGE_MISS_THRESHOLD", "3"))
	postMiss, _ := strconv.Atoi(getEnv("POST_MISS_THRESHOLD", "3"))
	maxCrawl, _ := strconv.Atoi(getEnv("MAX_CRAWL_SECONDS", "1100"))
	runTimeout, _ := strconv.Atoi(getEnv("RUN_TIMEOUT_SECONDS", "1200"))
	cooldown, _ := strconv.Atoi(getEnv("ADAPTER_COOLDOWN_SECONDS", "30"))
	runAtStartup, _ := strconv.ParseBool(getEnv("RUN_AT_STARTUP", "true"))

	return &Config{
		DBDriver:             getEnv("DB_DRIVER", "mysql"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               dbPort,
		DBUser:               getEnv("DB_USER", "root"),
		DBPassword:           os.Getenv("DB_PASSWORD"),
		DBName:               os.Getenv("DB_NAME"),
		DBTablePrefix:        os.Getenv("DB_TABLE_PREFIX"),
		DBConnTimeout:        time.Duration(dbTimeout) * time.Second,
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "hotissue"),
		RedisStreamMaxLength: redisMaxLen,
		MemcacheAddr:         os.Getenv("MEMCACHE_ADDR"),
		RateLimitBlock:       time.Duration(blockSeconds) * time.Second,
		CrawlSchedule:        getEnv("CRAWL_SCHEDULE", "0 5,11,17,23 * * *"),
		CrawlTimezone:        getEnv("CRAWL_TIMEZONE", "Asia/Seoul"),
		RunAtStartup:         runAtStartup,
		PageMissThreshold:    pageMiss,
		PostMissThreshold:    postMiss,
		MaxCrawlDuration:     time.Duration(maxCrawl) * time.Second,
		RunTimeout:           time.Duration(runTimeout) * time.Second,
		AdapterCooldown:      time.Duration(cooldown) * time.Second,
		DataDir:              getEnv("DATA_DIR", "./data"),
		Environment:          getEnv("HOTISSUE_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration and returns a configuration error
// describing the first problem found
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "postgres":
		if c.DBName == "" {
			return apperrors.NewConfiguration("DB_NAME is required for driver "+c.DBDriver, nil)
		}
	case "sqlite":
		if c.DBName == "" {
			return apperrors.NewConfiguration("DB_NAME must name the sqlite file", nil)
		}
	default:
		return apperrors.NewConfiguration(fmt.Sprintf("unsupported DB_DRIVER %q", c.DBDriver), nil)
	}

	if c.PageMissThreshold <= 0 || c.PostMissThreshold <= 0 {
		return apperrors.NewConfiguration("miss thresholds must be positive", nil)
	}
	if c.MaxCrawlDuration <= 0 || c.RunTimeout <= 0 {
		return apperrors.NewConfiguration("crawl durations must be positive", nil)
	}
	if _, err := c.Location(); err != nil {
		return apperrors.NewConfiguration("invalid CRAWL_TIMEZONE", err)
	}
	if _, err := cron.ParseStandard(c.CrawlSchedule); err != nil {
		return apperrors.NewConfiguration("invalid CRAWL_SCHEDULE", err)
	}
	return nil
}

// Location returns the time zone used for "today" and for reg_date rendering
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.CrawlTimezone)
}

// DSN returns the driver specific connection string
func (c *Config) DSN() string {
	timeout := int(c.DBConnTimeout / time.Second)
	switch c.DBDriver {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable connect_timeout=%d TimeZone=%s",
			c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, timeout, c.CrawlTimezone)
	case "sqlite":
		return c.DBName
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=%s&timeout=%ds",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, strings.ReplaceAll(c.CrawlTimezone, "/", "%2F"), timeout)
	}
}

// IsProduction reports whether the worker runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
