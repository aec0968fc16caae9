package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	LogFile          string        `mapstructure:"LOG_FILE"`
	StoreBackend     string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	MongoURI         string        `mapstructure:"MONGO_URI"`
	MongoDatabase    string        `mapstructure:"MONGO_DATABASE"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL     time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	PasswordResetTTL time.Duration `mapstructure:"PASSWORD_RESET_TTL"`
	PasswordResetURL string        `mapstructure:"PASSWORD_RESET_URL"`
	SMTPHost         string        `mapstructure:"SMTP_HOST"`
	SMTPPort         int           `mapstructure:"SMTP_PORT"`
	SMTPUsername     string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword     string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom         string        `mapstructure:"SMTP_FROM"`
	SummaryAPIURL    string        `mapstructure:"SUMMARY_API_URL"`
	SummaryAPIKey    string        `mapstructure:"SUMMARY_API_KEY"`
	SummaryModel     string        `mapstructure:"SUMMARY_MODEL"`
	SummaryTimeout   time.Duration `mapstructure:"SUMMARY_TIMEOUT"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	PhoneRegion      string        `mapstructure:"PHONE_REGION"`
	QueryCacheTTL    time.Duration `mapstructure:"QUERY_CACHE_TTL"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "LOG_FILE",
	"STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"MONGO_URI", "MONGO_DATABASE", "REDIS_URL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_TOKEN_TTL", "PASSWORD_RESET_TTL", "PASSWORD_RESET_URL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	"SUMMARY_API_URL", "SUMMARY_API_KEY", "SUMMARY_MODEL", "SUMMARY_TIMEOUT",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"PHONE_REGION", "QUERY_CACHE_TTL",
}

// Load reads configuration from the environment and an optional .env file.
// Missing store or identity settings are not an error here; see MissingServices.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("MONGO_DATABASE", "fisiotrack")
	v.SetDefault("AUTH_ISSUER", "fisiotrack")
	v.SetDefault("AUTH_TOKEN_TTL", "1h")
	v.SetDefault("PASSWORD_RESET_TTL", "24h")
	v.SetDefault("PASSWORD_RESET_URL", "http://localhost:3000/restablecer")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SUMMARY_MODEL", "gpt-4o-mini")
	v.SetDefault("SUMMARY_TIMEOUT", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("PHONE_REGION", "ES")
	v.SetDefault("QUERY_CACHE_TTL", "5m")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if missing := cfg.MissingServices(); len(missing) > 0 {
		log.Printf("WARNING: missing %s; the API will answer 503 until configured", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MissingServices lists the required settings that are absent. When it is
// non-empty the identity and record stores cannot be built and the server runs
// in degraded mode.
func (c *Config) MissingServices() []string {
	var missing []string
	switch c.StoreBackend {
	case BackendMongo:
		if c.MongoURI == "" {
			missing = append(missing, "MONGO_URI")
		}
	default:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	}
	if c.AuthSigningKey == "" {
		missing = append(missing, "AUTH_SIGNING_KEY")
	}
	return missing
}

// Degraded reports whether required services are unconfigured.
func (c *Config) Degraded() bool {
	return len(c.MissingServices()) > 0
}

// MailEnabled reports whether outbound SMTP is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

// SummaryEnabled reports whether the summarization endpoint is configured.
func (c *Config) SummaryEnabled() bool {
	return c.SummaryAPIURL != ""
}

// Validate rejects values that are present but unusable.
func (c *Config) Validate() error {
	if c.StoreBackend != BackendPostgres && c.StoreBackend != BackendMongo {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMongo, c.StoreBackend)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}
	if c.IsProduction() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.PasswordResetTTL <= 0 {
		return fmt.Errorf("PASSWORD_RESET_TTL must be positive")
	}
	if c.QueryCacheTTL <= 0 {
		return fmt.Errorf("QUERY_CACHE_TTL must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
