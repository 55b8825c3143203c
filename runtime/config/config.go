// Package config loads the gateway's process configuration from the
// environment (and an optional .env file via godotenv, for local
// development), and fails fast on missing required values rather than
// letting a misconfigured server start serving traffic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the gateway's entrypoints
// need, grouped by the component each field configures.
type Config struct {
	// Stores.
	PostgresDSN           string
	ClickhouseDSN         string
	ClickhousePasswordSalt string

	// Blob store.
	FileStorageDSN           string
	FileStorageContainerName string

	// Task queue.
	JobsBrokerURL string

	// Authentication.
	JWKSURL string
	JWK     string

	// Billing.
	StripeAPIKey         string
	StripeWebhookSecret  string

	// Telemetry.
	SentryDSN     string
	PostHogAPIKey string
	PostHogHost   string
	LogLevel      string
	JSONLogs      bool
	EnvName       string

	// Provider credentials, keyed by the environment variable name spec §6
	// lists them under (e.g. "OPENAI_API_KEY"). Adapters that need more than
	// a bare API key (Bedrock's resource/model map, Azure's deployment base
	// URL) read their own extra variables directly off ProviderEnv too.
	ProviderEnv map[string]string

	// ListenAddr is the address the HTTP server binds, not named in spec §6
	// but needed by cmd/gateway; defaults to ":8080".
	ListenAddr string
}

// providerEnvVars lists every per-provider environment variable the gateway
// recognizes (spec §6's "Per-provider keys" row), so Load can snapshot them
// into Config.ProviderEnv without the config package needing to know which
// provider adapters are actually wired up by the caller.
var providerEnvVars = []string{
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
	"GOOGLE_API_KEY",
	"GROQ_API_KEY",
	"FIREWORKS_API_KEY",
	"XAI_API_KEY",
	"MISTRAL_API_KEY",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_BASE_URL",
	"AWS_BEDROCK_API_KEY",
	"AWS_BEDROCK_RESOURCE_ID_MODEL_MAP",
	"AWS_REGION",
}

// Load reads configuration from the environment. It first loads a .env file
// at path if one exists (silently skipped if absent, since production
// deployments set real environment variables instead), then populates Config
// from os.Getenv, validating the handful of values every deployment needs.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	cfg := &Config{
		PostgresDSN:              os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:            os.Getenv("CLICKHOUSE_DSN"),
		ClickhousePasswordSalt:   os.Getenv("CLICKHOUSE_PASSWORD_SALT"),
		FileStorageDSN:           os.Getenv("FILE_STORAGE_DSN"),
		FileStorageContainerName: os.Getenv("FILE_STORAGE_CONTAINER_NAME"),
		JobsBrokerURL:            getenvDefault("JOBS_BROKER_URL", "memory://"),
		JWKSURL:                  os.Getenv("JWKS_URL"),
		JWK:                      os.Getenv("JWK"),
		StripeAPIKey:             os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret:      os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SentryDSN:                os.Getenv("SENTRY_DSN"),
		PostHogAPIKey:            os.Getenv("POSTHOG_API_KEY"),
		PostHogHost:              os.Getenv("POSTHOG_HOST"),
		LogLevel:                 getenvDefault("LOG_LEVEL", "info"),
		EnvName:                  getenvDefault("ENV_NAME", "development"),
		ListenAddr:               getenvDefault("LISTEN_ADDR", ":8080"),
		ProviderEnv:              make(map[string]string, len(providerEnvVars)),
	}

	jsonLogs, err := parseBool(os.Getenv("JSON_LOGS"), false)
	if err != nil {
		return nil, fmt.Errorf("config: JSON_LOGS: %w", err)
	}
	cfg.JSONLogs = jsonLogs

	for _, name := range providerEnvVars {
		if v := os.Getenv(name); v != "" {
			cfg.ProviderEnv[name] = v
		}
	}

	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("config: POSTGRES_DSN is required")
	}
	if cfg.JWKSURL == "" && cfg.JWK == "" {
		return nil, fmt.Errorf("config: one of JWKS_URL or JWK is required")
	}

	return cfg, nil
}

// IsLocalPostgres reports whether PostgresDSN points at a loopback host,
// the guard cmd/migrate uses before honoring a --reset flag (spec §6's
// "reset attempted against non-local DSN" exit-code condition).
func (c *Config) IsLocalPostgres() bool {
	dsn := strings.ToLower(c.PostgresDSN)
	for _, host := range []string{"localhost", "127.0.0.1", "::1"} {
		if strings.Contains(dsn, host) {
			return true
		}
	}
	return false
}

func getenvDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func parseBool(v string, fallback bool) (bool, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}
