package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	MongoURI       string        `mapstructure:"MONGO_URI"`
	MongoUser      string        `mapstructure:"MONGO_USER"`
	MongoPassword  string        `mapstructure:"MONGO_PASSWORD"`
	MongoHost      string        `mapstructure:"MONGO_HOST"`
	MongoDatabase  string        `mapstructure:"MONGO_DB"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	RedisChannel   string        `mapstructure:"REDIS_CHANNEL"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTTTL         time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	OpenAIAPIKey   string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL  string        `mapstructure:"OPENAI_BASE_URL"`
	LLMModel       string        `mapstructure:"LLM_MODEL"`
	LLMFallback    string        `mapstructure:"LLM_FALLBACK_MODEL"`
	LLMTimeout     time.Duration `mapstructure:"LLM_TIMEOUT"`
	ChatConfigFile string        `mapstructure:"CHAT_CONFIG_FILE"`
	AppointmentTZ  string        `mapstructure:"APPOINTMENT_TZ"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "STORE_DRIVER",
	"MONGO_URI", "MONGO_USER", "MONGO_PASSWORD", "MONGO_HOST", "MONGO_DB",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "REDIS_CHANNEL",
	"JWT_SECRET", "JWT_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "LLM_MODEL", "LLM_FALLBACK_MODEL", "LLM_TIMEOUT",
	"CHAT_CONFIG_FILE", "APPOINTMENT_TZ",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("MONGO_DB", "feelwell")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("REDIS_CHANNEL", "feelwell-events")
	v.SetDefault("JWT_TTL", "72h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "75s")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_FALLBACK_MODEL", "gpt-3.5-turbo")
	v.SetDefault("LLM_TIMEOUT", "30s")
	v.SetDefault("APPOINTMENT_TZ", "UTC")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if cfg.IsDev() && cfg.ResolvedAuthMode() == "development" {
		log.Println("WARNING: AUTH_MODE=development, requests without a token are treated as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LLMBudget is the longest a single assistant reply can take: one
// LLM_TIMEOUT per model tried.
func (c *Config) LLMBudget() time.Duration {
	if c.LLMFallback != "" {
		return 2 * c.LLMTimeout
	}
	return c.LLMTimeout
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" in a
// development environment and "jwt" everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// MongoConnectionURI returns MONGO_URI, or assembles one from the
// MONGO_USER / MONGO_PASSWORD / MONGO_HOST components.
func (c *Config) MongoConnectionURI() string {
	if c.MongoURI != "" {
		return c.MongoURI
	}
	if c.MongoHost == "" {
		return ""
	}
	if c.MongoUser == "" {
		return "mongodb://" + c.MongoHost
	}
	// Atlas style hosts need the SRV scheme.
	scheme := "mongodb"
	if strings.Contains(c.MongoHost, ".mongodb.net") {
		scheme = "mongodb+srv"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.MongoUser, c.MongoPassword),
		Host:   c.MongoHost,
		Path:   "/",
	}
	return u.String()
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.AppointmentTZ)
}

// Validate checks that the configuration can run: the selected store must be
// reachable by configuration and tokens must be signed outside development.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "mongo":
		if c.MongoConnectionURI() == "" {
			return fmt.Errorf("MONGO_URI (or MONGO_HOST) is required when STORE_DRIVER is \"mongo\"")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is \"postgres\"")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be \"mongo\" or \"postgres\", got %q", c.StoreDriver)
	}

	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if c.JWTSecret == "" && !c.IsDev() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.IsProduction() && mode == "development" {
		return fmt.Errorf("AUTH_MODE=development is not allowed in production")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.RequestTimeout <= c.LLMBudget() {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed the LLM budget of %s", c.RequestTimeout, c.LLMBudget())
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("APPOINTMENT_TZ is not a valid time zone: %w", err)
	}
	return nil
}
