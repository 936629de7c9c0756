package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultDatabaseDSN = "host=localhost user=postgres password=postgres dbname=wasteportal port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:5173"
)

type Config struct {
	HTTPPort    string
	CORSOrigins string
	LogLevel    string

	DatabaseDriver string // postgres | sqlite
	DatabaseDSN    string

	JWTSecret  string
	SessionTTL time.Duration

	// "Today" and future-date checks are evaluated in this zone.
	Location *time.Location

	StorageDriver    string // local | s3
	StorageLocalPath string
	StoragePublicURL string
	MessBucket       string
	HostelBucket     string
	S3Endpoint       string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	S3UsePathStyle   bool

	MaxUploadBytes int64
	MaxUploadFiles int

	SNSTopicARN string

	AdminUsername string
	AdminPassword string

	// Non-fatal findings; the caller logs them once a logger exists.
	Warnings []string
}

// Load reads .env files (if present) and the process environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		CORSOrigins:      getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DatabaseDriver:   strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseDSN:      getEnv("DATABASE_DSN", defaultDatabaseDSN),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
		StorageLocalPath: getEnv("STORAGE_LOCAL_PATH", "./uploads"),
		StoragePublicURL: strings.TrimRight(getEnv("STORAGE_PUBLIC_URL", ""), "/"),
		MessBucket:       getEnv("STORAGE_MESS_BUCKET", "mess-images"),
		HostelBucket:     getEnv("STORAGE_HOSTEL_BUCKET", "hostel-images"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3Region:         getEnv("S3_REGION", getEnv("AWS_REGION", "us-east-1")),
		S3AccessKey:      getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:      getEnv("S3_SECRET_ACCESS_KEY", ""),
		SNSTopicARN:      getEnv("SNS_TOPIC_ARN", ""),
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    getEnv("ADMIN_PASSWORD", ""),
	}

	var err error
	if cfg.SessionTTL, err = time.ParseDuration(getEnv("SESSION_TTL", "1h")); err != nil || cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("invalid SESSION_TTL: %q", os.Getenv("SESSION_TTL"))
	}
	if cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "UTC")); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	if cfg.S3UsePathStyle, err = strconv.ParseBool(getEnv("S3_USE_PATH_STYLE", "true")); err != nil {
		return nil, fmt.Errorf("invalid S3_USE_PATH_STYLE: %w", err)
	}
	if cfg.MaxUploadBytes, err = strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "5242880"), 10, 64); err != nil || cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %q", os.Getenv("MAX_UPLOAD_BYTES"))
	}
	if cfg.MaxUploadFiles, err = strconv.Atoi(getEnv("MAX_UPLOAD_FILES", "5")); err != nil || cfg.MaxUploadFiles < 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_FILES: %q", os.Getenv("MAX_UPLOAD_FILES"))
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER: %q", cfg.DatabaseDriver)
	}
	switch cfg.StorageDriver {
	case "local", "s3":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER: %q", cfg.StorageDriver)
	}
	if cfg.MessBucket == cfg.HostelBucket {
		return nil, errors.New("STORAGE_MESS_BUCKET and STORAGE_HOSTEL_BUCKET must differ")
	}

	if cfg.DatabaseDriver == "postgres" && cfg.DatabaseDSN == defaultDatabaseDSN {
		cfg.Warnings = append(cfg.Warnings, "DATABASE_DSN uses the default value")
	}
	if cfg.CORSOrigins == defaultCORSOrigins {
		cfg.Warnings = append(cfg.Warnings, "CORS_ALLOWED_ORIGINS uses the default value")
	}
	if cfg.StorageDriver == "local" {
		cfg.Warnings = append(cfg.Warnings, "images are stored on the local filesystem")
	}

	return cfg, nil
}

// BodyLimit is the largest request Fiber accepts: all images plus form overhead.
func (c *Config) BodyLimit() int {
	return int(c.MaxUploadBytes)*max(c.MaxUploadFiles, 1) + 1<<20
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
