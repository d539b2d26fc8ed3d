package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string

	// BTCPay Server credentials. These are intentionally optional at load
	// time: the invoice client fails closed per call, so the storefront can
	// boot without a processor configured.
	BTCPayURL           string
	BTCPayAPIKey        string
	BTCPayStoreID       string
	BTCPayWebhookSecret string

	DownloadTokenSecret string
	UploadPath          string
	TokenExpiry         time.Duration

	PaymentRequestTimeout time.Duration
	PaymentRateLimit      string
	MaxBodyBytes          int64
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		BTCPayURL:           strings.TrimRight(strings.TrimSpace(k.String("BTCPAY_URL")), "/"),
		BTCPayAPIKey:        strings.TrimSpace(k.String("BTCPAY_API_KEY")),
		BTCPayStoreID:       strings.TrimSpace(k.String("BTCPAY_STORE_ID")),
		BTCPayWebhookSecret: strings.TrimSpace(k.String("BTCPAY_WEBHOOK_SECRET")),

		DownloadTokenSecret: strings.TrimSpace(k.String("DOWNLOAD_TOKEN_SECRET")),
		UploadPath:          valueOrDefault(k.String("UPLOAD_PATH"), "./uploads"),
		TokenExpiry:         parseSeconds(k.String("TOKEN_EXPIRY"), 3600),

		PaymentRequestTimeout: parseDuration(k.String("PAYMENT_REQUEST_TIMEOUT"), "10s"),
		PaymentRateLimit:      valueOrDefault(k.String("PAYMENT_RATE_LIMIT"), "30-M"),
		MaxBodyBytes:          parseInt64(k.String("MAX_BODY_BYTES"), 1<<20),
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// parseSeconds reads a plain integer number of seconds, falling back to
// duration syntax ("1h") for convenience.
func parseSeconds(value string, fallbackSec int64) time.Duration {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Duration(fallbackSec) * time.Second
	}
	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(trimmed); err == nil && d > 0 {
		return d
	}
	return time.Duration(fallbackSec) * time.Second
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(envVars map[string]string) (*Config, error) {
	original := make(map[string]string, len(envVars))
	for key := range envVars {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, envVars[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
