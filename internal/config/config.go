package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the mail services.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Provider ProviderConfig `yaml:"provider"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection used for templates, the send
// ledger and the recipient directory.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the template cache and lock backend. An empty URL
// disables both.
type RedisConfig struct {
	URL                string `yaml:"url"`
	TemplateTTLSeconds int    `yaml:"template_ttl_seconds"`
}

// TemplateTTL returns how long rendered template rows stay cached.
func (c RedisConfig) TemplateTTL() time.Duration {
	return time.Duration(c.TemplateTTLSeconds) * time.Second
}

// ProviderConfig holds the outbound email provider settings
type ProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	From           string `yaml:"from"`
	ReplyTo        string `yaml:"reply_to"`
}

// Timeout returns the HTTP timeout for provider calls.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebhookConfig holds delivery webhook verification settings
type WebhookConfig struct {
	SigningSecret    string `yaml:"signing_secret"`
	ToleranceSeconds int    `yaml:"tolerance_seconds"`
}

// Tolerance returns the accepted clock skew for signed timestamps.
func (c WebhookConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

// DeliveryConfig controls who may receive mail and the links embedded in it.
type DeliveryConfig struct {
	Environment     string `yaml:"environment"`
	AllowList       string `yaml:"allow_list"` // comma-separated; empty allows everyone
	SiteURL         string `yaml:"site_url"`
	UnsubscribePath string `yaml:"unsubscribe_path"`
}

// UnsubscribeURL returns the absolute notification-settings link.
func (c DeliveryConfig) UnsubscribeURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/" + strings.TrimLeft(c.UnsubscribePath, "/")
}

// AllowListEntries splits AllowList into trimmed, lower-cased addresses.
func (c DeliveryConfig) AllowListEntries() []string {
	var out []string
	for _, e := range strings.Split(c.AllowList, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// DispatchConfig holds the campaign job queue settings. An empty QueueURL
// disables campaign dispatch.
type DispatchConfig struct {
	QueueURL          string `yaml:"queue_url"`
	Region            string `yaml:"region"`
	LockTTLMinutes    int    `yaml:"lock_ttl_minutes"`
	WaitTimeSeconds   int    `yaml:"wait_time_seconds"`
	VisibilityTimeout int    `yaml:"visibility_timeout_seconds"`
}

// LockTTL returns how long a campaign dispatch lock is held.
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on; it defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with defaults only, for binaries started
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.Redis.TemplateTTLSeconds == 0 {
		cfg.Redis.TemplateTTLSeconds = 300
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.resend.com"
	}
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = 30
	}
	if cfg.Provider.From == "" {
		cfg.Provider.From = "Courtside <notifications@courtside.app>"
	}
	if cfg.Webhook.ToleranceSeconds == 0 {
		cfg.Webhook.ToleranceSeconds = 300
	}
	if cfg.Delivery.Environment == "" {
		cfg.Delivery.Environment = "development"
	}
	if cfg.Delivery.SiteURL == "" {
		cfg.Delivery.SiteURL = "https://courtside.app"
	}
	if cfg.Delivery.UnsubscribePath == "" {
		cfg.Delivery.UnsubscribePath = "/settings/notifications"
	}
	if cfg.Dispatch.Region == "" {
		cfg.Dispatch.Region = "us-east-1"
	}
	if cfg.Dispatch.LockTTLMinutes == 0 {
		cfg.Dispatch.LockTTLMinutes = 30
	}
	if cfg.Dispatch.WaitTimeSeconds == 0 {
		cfg.Dispatch.WaitTimeSeconds = 20
	}
	if cfg.Dispatch.VisibilityTimeout == 0 {
		cfg.Dispatch.VisibilityTimeout = 900
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars when deployed. An empty path
// skips the file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("EMAIL_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("EMAIL_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		cfg.Provider.From = v
	}
	if v := os.Getenv("EMAIL_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.SigningSecret = v
	}
	if v, ok := os.LookupEnv("EMAIL_ALLOWLIST"); ok {
		cfg.Delivery.AllowList = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Delivery.Environment = v
	}
	if v := os.Getenv("SITE_URL"); v != "" {
		cfg.Delivery.SiteURL = v
	}
	if v := os.Getenv("DISPATCH_QUEUE_URL"); v != "" {
		cfg.Dispatch.QueueURL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Dispatch.Region = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
