// Package config loads taskdesk's runtime configuration from environment variables.
// Every variable is read in one pass and all problems (missing required values,
// unparsable numbers or durations, out-of-range settings) are collected and
// reported together, so a misconfigured deployment fails once with the full list.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Store drivers understood by StoreDriver.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// PoolConfig represents configuration for the database connection pool.
type PoolConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxSize  int
	SSLMode  string
}

// AuthConfig holds session and password hashing settings.
type AuthConfig struct {
	JWTSecret            string        // Secret key for signing JWTs
	AccessTokenDuration  time.Duration // Lifetime of access tokens
	RefreshTokenDuration time.Duration // Lifetime of refresh tokens
	CookieSecure         bool          // Mark the session cookie Secure
	BcryptCost           int
}

// ResetConfig controls the password reset flow.
type ResetConfig struct {
	BaseURL            string        // Prefix of the emailed reset link
	TokenTTL           time.Duration // How long an issued token stays consumable
	InvalidatePrevious bool          // Drop a user's outstanding tokens when a new one is issued
}

// MailConfig holds SMTP settings. An empty Host selects the logging notifier.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// TelemetryConfig holds tracing export settings.
type TelemetryConfig struct {
	OTLPEndpoint string
}

// AppConfig is the top-level configuration structure for the application.
type AppConfig struct {
	Env         string
	StoreDriver string
	DB          *PoolConfig
	Auth        *AuthConfig
	Reset       *ResetConfig
	Mail        *MailConfig
	Server      *ServerConfig
	Telemetry   *TelemetryConfig
}

// IsDevelopment reports whether the app runs with APP_ENV=development.
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// loader reads environment variables and accumulates every problem it sees.
type loader struct {
	errs *multierror.Error
}

func (l *loader) fail(format string, args ...any) {
	l.errs = multierror.Append(l.errs, fmt.Errorf(format, args...))
}

func (l *loader) required(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		l.fail("missing required environment variable: %s", key)
		return ""
	}
	return value
}

func (l *loader) optional(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func (l *loader) optionalInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		l.fail("invalid value for %s: expected integer, got '%s': %v", key, valueStr, err)
		return defaultValue
	}
	return valueInt
}

func (l *loader) optionalBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueBool, err := strconv.ParseBool(valueStr)
	if err != nil {
		l.fail("invalid value for %s: expected boolean, got '%s': %v", key, valueStr, err)
		return defaultValue
	}
	return valueBool
}

// `time.ParseDuration` expects a string like "15m", "1h30s".
func (l *loader) optionalDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueDuration, err := time.ParseDuration(valueStr)
	if err != nil {
		l.fail("invalid value for %s: expected duration string, got '%s': %v", key, valueStr, err)
		return defaultValue
	}
	if valueDuration <= 0 {
		l.fail("invalid value for %s: duration must be positive, got '%s'", key, valueStr)
		return defaultValue
	}
	return valueDuration
}

func (l *loader) inRange(key string, value, lo, hi int) {
	if value < lo || value > hi {
		l.fail("invalid value for %s: %d is outside [%d, %d]", key, value, lo, hi)
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadConfig creates an AppConfig from the environment. It returns a single error
// listing every problem found.
func LoadConfig() (*AppConfig, error) {
	l := &loader{}

	env := l.optional("APP_ENV", "development")
	driver := l.optional("STORE_DRIVER", StoreDriverPostgres)

	var dbCfg *PoolConfig
	switch driver {
	case StoreDriverPostgres:
		dbCfg = &PoolConfig{
			User:     l.required("DB_USER"),
			Password: l.required("DB_PASSWORD"),
			DBName:   l.required("DB_NAME"),
			Host:     l.optional("DB_HOST", "localhost"),
			Port:     l.optionalInt("DB_PORT", 5432),
			MaxSize:  l.optionalInt("DB_POOL_SIZE", 10),
			SSLMode:  l.optional("DB_SSLMODE", "disable"),
		}
		l.inRange("DB_POOL_SIZE", dbCfg.MaxSize, 1, 100)
	case StoreDriverMemory:
	default:
		l.fail("invalid value for STORE_DRIVER: expected %q or %q, got '%s'", StoreDriverPostgres, StoreDriverMemory, driver)
	}

	authCfg := &AuthConfig{
		JWTSecret:            l.required("JWT_SECRET"),
		AccessTokenDuration:  l.optionalDuration("JWT_ACCESS_TOKEN_DURATION", 15*time.Minute),
		RefreshTokenDuration: l.optionalDuration("JWT_REFRESH_TOKEN_DURATION", 168*time.Hour), // 7 days
		CookieSecure:         l.optionalBool("COOKIE_SECURE", env != "development"),
		BcryptCost:           l.optionalInt("BCRYPT_COST", 10),
	}
	l.inRange("BCRYPT_COST", authCfg.BcryptCost, 4, 31)

	resetCfg := &ResetConfig{
		BaseURL:            strings.TrimRight(l.optional("APP_BASE_URL", "http://localhost:3000"), "/"),
		TokenTTL:           l.optionalDuration("RESET_TOKEN_TTL", 30*time.Minute),
		InvalidatePrevious: l.optionalBool("RESET_INVALIDATE_PREVIOUS", false),
	}

	mailCfg := &MailConfig{
		Host:     l.optional("SMTP_HOST", ""),
		Port:     l.optionalInt("SMTP_PORT", 587),
		Username: l.optional("SMTP_USERNAME", ""),
		Password: l.optional("SMTP_PASSWORD", ""),
		Sender:   l.optional("SMTP_SENDER", "taskdesk <no-reply@taskdesk.local>"),
	}

	serverCfg := &ServerConfig{
		Port:               l.optional("PORT", "8080"),
		AllowedOrigins:     splitList(l.optional("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerMinute: l.optionalInt("RATE_LIMIT_PER_MINUTE", 60),
	}
	l.inRange("RATE_LIMIT_PER_MINUTE", serverCfg.RateLimitPerMinute, 1, 100000)

	telemetryCfg := &TelemetryConfig{
		OTLPEndpoint: l.optional("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := l.errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("configuration errors: %w", err)
	}

	return &AppConfig{
		Env:         env,
		StoreDriver: driver,
		DB:          dbCfg,
		Auth:        authCfg,
		Reset:       resetCfg,
		Mail:        mailCfg,
		Server:      serverCfg,
		Telemetry:   telemetryCfg,
	}, nil
}
