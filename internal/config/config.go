package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration (staff tokens are issued by the identity service)
	JWT JWTConfig

	// Booking / hold configuration
	Booking BookingConfig

	// Retention rates snapshot used by settlement
	Retention models.RetentionConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Redis configuration (rate limiting, event stream)
	Redis RedisConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // "postgres" or "memory"
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret string
}

// BookingConfig holds hold and code issuance settings
type BookingConfig struct {
	HoldTTL         time.Duration
	SweepSchedule   string // robfig/cron expression
	CodeMaxAttempts int
	QRSigningKey    string
	DefaultCurrency string
}

// PaymentConfig holds payment gateway configuration. Mode is fixed per deployment.
type PaymentConfig struct {
	Mode          models.PaymentMode // "sandbox" or "live"
	Environment   string             // PAYable environment for live mode: "sandbox" or "production"
	MerchantKey   string
	MerchantToken string // SECRET - never expose to client
	LogoURL       string
	ReturnURL     string
	WebhookURL    string
}

// RedisConfig holds Redis connection settings; empty URL disables Redis features
type RedisConfig struct {
	URL string
}

// RateLimitConfig configures the token bucket guarding redemption
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillInterval time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	retention, err := loadRetention()
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("STORAGE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Booking: BookingConfig{
			HoldTTL:         getEnvAsDuration("HOLD_TTL", 10*time.Minute),
			SweepSchedule:   getEnv("HOLD_SWEEP_SCHEDULE", "@every 30s"),
			CodeMaxAttempts: getEnvAsInt("CODE_MAX_ATTEMPTS", 5),
			QRSigningKey:    getEnv("QR_SIGNING_KEY", ""),
			DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),
		},
		Retention: retention,
		Payment: PaymentConfig{
			Mode:          models.PaymentMode(getEnv("PAYMENT_MODE", "sandbox")),
			Environment:   getEnv("PAYABLE_ENVIRONMENT", "sandbox"),
			MerchantKey:   getEnv("PAYABLE_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYABLE_MERCHANT_TOKEN", ""),
			LogoURL:       getEnv("PAYABLE_LOGO_URL", ""),
			ReturnURL:     getEnv("PAYABLE_RETURN_URL", ""),
			WebhookURL:    getEnv("PAYABLE_WEBHOOK_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Capacity:       getEnvAsInt("RATE_LIMIT_CAPACITY", 30),
			RefillInterval: getEnvAsDuration("RATE_LIMIT_REFILL_INTERVAL", 2*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadRetention parses the four retention percentages. Malformed values are
// rejected rather than defaulted.
func loadRetention() (models.RetentionConfig, error) {
	cfg := models.RetentionConfig{Version: getEnv("RETENTION_VERSION", "v1")}
	fields := []struct {
		key string
		def string
		dst *models.Rate
	}{
		{"RETENTION_APP_COMMISSION", "0.00", &cfg.AppCommission},
		{"RETENTION_TAX", "0.00", &cfg.Tax},
		{"RETENTION_BANK_COMMISSION", "0.00", &cfg.BankCommission},
		{"RETENTION_OTHER", "0.00", &cfg.OtherRetentions},
	}
	for _, f := range fields {
		r, err := models.ParseRate(getEnv(f.key, f.def))
		if err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", models.ErrRateConfigInvalid, f.key, err)
		}
		*f.dst = r
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
		if c.Server.Environment == "production" {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER: %s (must be 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.Booking.QRSigningKey) < 16 {
		return fmt.Errorf("QR_SIGNING_KEY is required (at least 16 characters)")
	}

	if c.Booking.HoldTTL <= 0 {
		return fmt.Errorf("HOLD_TTL must be positive")
	}

	if c.Booking.CodeMaxAttempts < 1 {
		return fmt.Errorf("CODE_MAX_ATTEMPTS must be at least 1")
	}

	if err := c.Retention.Validate(); err != nil {
		return err
	}

	switch c.Payment.Mode {
	case models.PaymentModeSandbox:
	case models.PaymentModeLive:
		if c.Payment.MerchantKey == "" || c.Payment.MerchantToken == "" {
			return fmt.Errorf("PAYABLE_MERCHANT_KEY and PAYABLE_MERCHANT_TOKEN are required in live mode")
		}
	default:
		return fmt.Errorf("invalid PAYMENT_MODE: %s (must be 'sandbox' or 'live')", c.Payment.Mode)
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
