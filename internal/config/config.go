package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devSessionSecret = "dev-session-secret"

// Config aggregates runtime configuration for the web edge and the terminal client.
type Config struct {
	App         AppConfig
	IdentityAPI IdentityAPIConfig
	Google      GoogleConfig
	Session     SessionConfig
	Inactivity  InactivityConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// IdentityAPIConfig points at the remote identity/resource API.
type IdentityAPIConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// GoogleConfig holds the OAuth client used for identity-provider sign-in.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// SessionConfig defines the session token and refresh parameters.
type SessionConfig struct {
	Secret                     string
	CookieName                 string
	CookieSecure               bool
	MaxAgeHours                int
	AccessTokenValidityMinutes int
	RefreshMaxAttempts         int
	RefreshCacheTTLSeconds     int
}

// InactivityConfig defines the idle sign-out windows.
type InactivityConfig struct {
	TotalSeconds   int
	WarningSeconds int
}

// PostgresConfig holds DB connection values for the audit trail.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values for the refresh-outcome cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Output string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "gift-exchange-web"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		IdentityAPI: IdentityAPIConfig{
			BaseURL:        strings.TrimRight(getEnv("IDENTITY_API_BASE_URL", "http://127.0.0.1:8000"), "/"),
			TimeoutSeconds: getEnvAsInt("IDENTITY_API_TIMEOUT_SECONDS", 10),
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		},
		Session: SessionConfig{
			Secret:                     getEnv("SESSION_SECRET", devSessionSecret),
			CookieName:                 getEnv("SESSION_COOKIE_NAME", "gift_session"),
			CookieSecure:               getEnvAsBool("SESSION_COOKIE_SECURE", false),
			MaxAgeHours:                getEnvAsInt("SESSION_MAX_AGE_HOURS", 720),
			AccessTokenValidityMinutes: getEnvAsInt("SESSION_ACCESS_TOKEN_VALIDITY_MINUTES", 15),
			RefreshMaxAttempts:         getEnvAsInt("SESSION_REFRESH_MAX_ATTEMPTS", 1),
			RefreshCacheTTLSeconds:     getEnvAsInt("SESSION_REFRESH_CACHE_TTL_SECONDS", 30),
		},
		Inactivity: InactivityConfig{
			TotalSeconds:   getEnvAsInt("INACTIVITY_TOTAL_SECONDS", 1800),
			WarningSeconds: getEnvAsInt("INACTIVITY_WARNING_SECONDS", 10),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the session core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Session.Secret) == "" {
		errs = append(errs, errors.New("SESSION_SECRET must not be empty"))
	} else if c.Session.Secret == devSessionSecret && !c.App.IsDevelopment() {
		errs = append(errs, errors.New("SESSION_SECRET must be set outside development"))
	}
	if c.IdentityAPI.BaseURL == "" {
		errs = append(errs, errors.New("IDENTITY_API_BASE_URL must not be empty"))
	}
	if c.Inactivity.WarningSeconds <= 0 || c.Inactivity.TotalSeconds <= c.Inactivity.WarningSeconds {
		errs = append(errs, fmt.Errorf("inactivity warning window (%ds) must be positive and shorter than the total window (%ds)",
			c.Inactivity.WarningSeconds, c.Inactivity.TotalSeconds))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsDevelopment reports whether the app runs in the development environment.
func (a AppConfig) IsDevelopment() bool {
	return strings.EqualFold(a.Env, "development")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call timeout for the identity API.
func (i IdentityAPIConfig) Timeout() time.Duration {
	if i.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// Enabled reports whether Google sign-in is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// AccessTokenValidity is the local estimate of an access token's lifetime.
func (s SessionConfig) AccessTokenValidity() time.Duration {
	if s.AccessTokenValidityMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.AccessTokenValidityMinutes) * time.Minute
}

// MaxAge bounds the lifetime of the sealed session cookie.
func (s SessionConfig) MaxAge() time.Duration {
	if s.MaxAgeHours <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(s.MaxAgeHours) * time.Hour
}

// RefreshCacheTTL is how long a refresh outcome stays shareable across instances.
func (s SessionConfig) RefreshCacheTTL() time.Duration {
	if s.RefreshCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(s.RefreshCacheTTLSeconds) * time.Second
}

// Total is the full inactivity window including the warning countdown.
func (i InactivityConfig) Total() time.Duration {
	return time.Duration(i.TotalSeconds) * time.Second
}

// Warning is the countdown shown before an inactivity sign-out.
func (i InactivityConfig) Warning() time.Duration {
	return time.Duration(i.WarningSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
