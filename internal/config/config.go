package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultStorageLimit int64 = 10 << 30 // 10 GiB
	DefaultMaxUpload    int64 = 5 << 30  // 5 GiB
)

type Config struct {
	// Application
	AppName string
	AppEnv  string `validate:"oneof=development production test"`
	Port    string `validate:"required,numeric"`

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string `validate:"oneof=sqlite pgx"`
	DBConnection string `validate:"required"`

	// Security
	JWTSecret  string        `validate:"required"`
	JWTExpiry  time.Duration `validate:"gt=0"`
	CronSecret string

	// Observability (optional)
	SentryDSN string

	// Storage
	StorageDriver string `validate:"oneof=blob s3"`
	StorageURL    string // gocloud URL: file:///..., mem://, s3://bucket?region=...

	// Storage (S3-compatible: MinIO, AWS S3, Cloudflare R2, DigitalOcean Spaces, etc.)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // Optional: for S3-compatible services (MinIO, DO Spaces, R2, etc.)

	// Quota
	DefaultStorageLimit int64 `validate:"gt=0"`
	MaxUploadSize       int64 `validate:"gt=0"`

	// Retention / cleanup
	RetentionDays           int  `validate:"gte=0"`
	CleanupMaxFilesPerRun   int  `validate:"gt=0"`
	CleanupMaxFoldersPerRun int  `validate:"gt=0"`
	CleanupMaxPurgeAttempts int  `validate:"gt=0"`
	CleanupLogEnabled       bool

	// Rate limiting (badger-backed; empty path keeps counters in memory)
	RateLimitRequests int           `validate:"gte=0"`
	RateLimitWindow   time.Duration `validate:"gt=0"`
	RateLimitPath     string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Cloudbox"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/cloudbox.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Security
		JWTSecret:  envRequired("JWT_SECRET"),
		JWTExpiry:  envDuration("JWT_EXPIRY", 7*24*time.Hour),
		CronSecret: envString("CRON_SECRET", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage
		StorageDriver: envString("STORAGE_DRIVER", "blob"),
		StorageURL:    envString("STORAGE_URL", defaultStorageURL()),
		S3Region:      envString("S3_REGION", ""),
		S3Bucket:      envString("S3_BUCKET", ""),
		S3AccessKey:   envString("S3_ACCESS_KEY", ""),
		S3SecretKey:   envString("S3_SECRET_KEY", ""),
		S3Endpoint:    envString("S3_ENDPOINT", ""),

		// Quota
		DefaultStorageLimit: envInt64("DEFAULT_STORAGE_LIMIT", DefaultStorageLimit),
		MaxUploadSize:       envInt64("MAX_UPLOAD_SIZE", DefaultMaxUpload),

		// Retention / cleanup
		RetentionDays:           envInt("RETENTION_DAYS", 7),
		CleanupMaxFilesPerRun:   envInt("CLEANUP_MAX_FILES_PER_RUN", 1000),
		CleanupMaxFoldersPerRun: envInt("CLEANUP_MAX_FOLDERS_PER_RUN", 100),
		CleanupMaxPurgeAttempts: envInt("CLEANUP_MAX_PURGE_ATTEMPTS", 5),
		CleanupLogEnabled:       envBool("CLEANUP_LOG_ENABLED", true),

		// Rate limiting
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 300),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitPath:     envString("RATE_LIMIT_PATH", ""),
	}

	err = Validate(cfg)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks struct tags and the storage rules tags cannot express.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err != nil {
		return formatValidationError(err)
	}

	if cfg.StorageDriver == "s3" && (cfg.S3Bucket == "" || cfg.S3Region == "") {
		return fmt.Errorf("storage: STORAGE_DRIVER=s3 requires S3_BUCKET and S3_REGION")
	}
	if cfg.StorageDriver == "blob" && cfg.StorageURL == "" {
		return fmt.Errorf("storage: STORAGE_DRIVER=blob requires STORAGE_URL")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// validateProduction ensures all required services are configured for production deployments.
func validateProduction(cfg *Config) {
	if cfg.CronSecret == "" {
		slog.Error("production deployment requires CRON_SECRET",
			"hint", "the cleanup endpoint rejects every request without it")
		os.Exit(1)
	}
}

func defaultStorageURL() string {
	dir, err := filepath.Abs(filepath.Join("data", "blobs"))
	if err != nil {
		return "mem://"
	}
	return "file://" + filepath.ToSlash(dir)
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config invalid int64, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Retention is the soft-delete retention window.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName: c.AppName,
		AppEnv:  c.AppEnv,
		Port:    c.Port,

		DefaultStorageLimit: c.DefaultStorageLimit,
		MaxUploadSize:       c.MaxUploadSize,
		RetentionDays:       c.RetentionDays,
	}
}
