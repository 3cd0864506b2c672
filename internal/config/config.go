package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL    string
	DatabaseDriver string

	// Redis
	RedisURL          string
	HierarchyCacheTTL time.Duration

	// Kafka
	KafkaBrokers     string
	KafkaExportTopic string
	KafkaGroupID     string

	// API Configuration
	APIPort            string
	APIHost            string
	CORSAllowedOrigins []string

	// Supplier
	SupplierBaseURL      string
	SupplierAuthPath     string
	SupplierProductsPath string
	SupplierUsername     string
	SupplierPassword     string
	SupplierFormat       string

	// Sync
	PageSize          int
	MaxRecords        int
	PageDelay         time.Duration
	StaleRunAfter     time.Duration
	RequestTimeout    time.Duration
	AuthRetries       int
	PageRetries       int
	Backoff           []time.Duration
	RetryableStatuses []int

	// Normalization
	PriceScale          int64
	MaxImages           int
	DescriptionMaxLen   int
	PlaceholderImageURL string

	// Categories
	CategoryConfigPath string

	// Export
	ExportDir        string
	ExportS3Bucket   string
	ExportS3Region   string
	ExportS3Endpoint string
	ExportS3Key      string
	ExportS3Secret   string
	ExportPrefix     string
	FeedMaxTitleLen  int

	// Environment
	Env      string
	LogLevel string
}

func Load() (*Config, error) {
	// Load .env file
	godotenv.Load()

	return &Config{
		DatabaseURL:          getEnv("DATABASE_URL", "sqlite://catalog.db"),
		DatabaseDriver:       getEnv("DATABASE_DRIVER", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		HierarchyCacheTTL:    getEnvAsDuration("HIERARCHY_CACHE_TTL", 10*time.Minute),
		KafkaBrokers:         getEnv("KAFKA_BROKERS", ""),
		KafkaExportTopic:     getEnv("KAFKA_EXPORT_TOPIC", "catalog-exports"),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "catalog-export-worker"),
		APIPort:              getEnv("API_PORT", "8080"),
		APIHost:              getEnv("API_HOST", "0.0.0.0"),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		SupplierBaseURL:      getEnv("SUPPLIER_BASE_URL", "http://localhost:9000"),
		SupplierAuthPath:     getEnv("SUPPLIER_AUTH_PATH", "/auth/token"),
		SupplierProductsPath: getEnv("SUPPLIER_PRODUCTS_PATH", "/products"),
		SupplierUsername:     getEnv("SUPPLIER_USERNAME", ""),
		SupplierPassword:     getEnv("SUPPLIER_PASSWORD", ""),
		SupplierFormat:       getEnv("SUPPLIER_FORMAT", ""),
		PageSize:             getEnvAsInt("SYNC_PAGE_SIZE", 100),
		MaxRecords:           getEnvAsInt("SYNC_MAX_RECORDS", 50000),
		PageDelay:            getEnvAsDuration("SYNC_PAGE_DELAY", time.Second),
		StaleRunAfter:        getEnvAsDuration("SYNC_STALE_RUN_AFTER", 30*time.Minute),
		RequestTimeout:       getEnvAsDuration("SYNC_REQUEST_TIMEOUT", 60*time.Second),
		AuthRetries:          getEnvAsInt("SYNC_AUTH_RETRIES", 3),
		PageRetries:          getEnvAsInt("SYNC_PAGE_RETRIES", 5),
		Backoff:              getEnvAsDurations("SYNC_BACKOFF", []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second, 90 * time.Second}),
		RetryableStatuses:    getEnvAsInts("SYNC_RETRYABLE_STATUSES", []int{502, 503, 504}),
		PriceScale:           int64(getEnvAsInt("PRICE_SCALE", 1)),
		MaxImages:            getEnvAsInt("MAX_IMAGES", 10),
		DescriptionMaxLen:    getEnvAsInt("DESCRIPTION_MAX_LENGTH", 2000),
		PlaceholderImageURL:  getEnv("PLACEHOLDER_IMAGE_URL", "https://placehold.co/600x600?text=No+image"),
		CategoryConfigPath:   getEnv("CATEGORY_CONFIG_PATH", ""),
		ExportDir:            getEnv("EXPORT_DIR", "exports"),
		ExportS3Bucket:       getEnv("EXPORT_S3_BUCKET", ""),
		ExportS3Region:       getEnv("EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint:     getEnv("EXPORT_S3_ENDPOINT", ""),
		ExportS3Key:          getEnv("EXPORT_S3_KEY", ""),
		ExportS3Secret:       getEnv("EXPORT_S3_SECRET", ""),
		ExportPrefix:         getEnv("EXPORT_PREFIX", "feeds"),
		FeedMaxTitleLen:      getEnvAsInt("FEED_MAX_TITLE_LENGTH", 150),
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsDurations parses a comma separated list such as "5s,15s,45s".
// Any unparsable element makes the whole value fall back to the default.
func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []time.Duration
	for _, part := range strings.Split(value, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, d)
	}
	return out
}

func getEnvAsList(key string, defaultValue []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsInts(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}
