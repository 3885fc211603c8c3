package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"magiclink-auth/internal/model"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Environment        string
	ServerPort         string
	ServerURL          string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	JWTSecret           string
	SessionDuration     time.Duration
	TokenRotationPolicy string

	CookieName   string
	CookieDomain string

	RateLimitMaxAttempts int
	RateLimitWindow      time.Duration
	RateLimitRPM         int
	AuthRateLimitRPM     int

	CleanupCron     string
	CleanupTimezone string

	QueuePollInterval time.Duration
	QueueRetryLimit   int

	SMTPHost string
	SMTPPort int
	MailFrom string

	CORSOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	environment := strings.ToLower(getEnv("ENVIRONMENT", EnvDevelopment))

	cfg := &Config{
		Environment:        environment,
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerURL:          getEnv("SERVER_URL", "http://localhost:8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		JWTSecret:           strings.TrimSpace(os.Getenv("JWT_SECRET")),
		SessionDuration:     getDuration("SESSION_DURATION", 168*time.Hour),
		TokenRotationPolicy: strings.ToLower(getEnv("TOKEN_ROTATION_POLICY", model.RotationAdditive)),

		CookieName:   getEnv("COOKIE_NAME", "auth_session"),
		CookieDomain: strings.TrimSpace(os.Getenv("COOKIE_DOMAIN")),

		RateLimitMaxAttempts: getInt("RATE_LIMIT_MAX_ATTEMPTS", defaultMaxAttempts(environment)),
		RateLimitWindow:      getDuration("RATE_LIMIT_WINDOW", time.Hour),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:     getInt("AUTH_RATE_LIMIT_RPM", 10),

		CleanupCron:     getEnv("CLEANUP_CRON", "0 3 * * *"),
		CleanupTimezone: getEnv("CLEANUP_TIMEZONE", "UTC"),

		QueuePollInterval: getDuration("QUEUE_POLL_INTERVAL", 2*time.Second),
		QueueRetryLimit:   getInt("QUEUE_RETRY_LIMIT", 3),

		SMTPHost: getEnv("SMTP_HOST", "localhost"),
		SMTPPort: getInt("SMTP_PORT", 1025),
		MailFrom: getEnv("MAIL_FROM", "noreply@magiclink-auth.local"),

		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("ENVIRONMENT must be %q or %q", EnvDevelopment, EnvProduction)
	}

	if c.SessionDuration <= 0 {
		return fmt.Errorf("SESSION_DURATION must be positive")
	}

	if c.TokenRotationPolicy != model.RotationAdditive && c.TokenRotationPolicy != model.RotationReplace {
		return fmt.Errorf("TOKEN_ROTATION_POLICY must be %q or %q", model.RotationAdditive, model.RotationReplace)
	}

	if c.RateLimitMaxAttempts <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_ATTEMPTS must be positive")
	}

	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("COOKIE_NAME cannot be empty")
	}

	if c.QueuePollInterval <= 0 {
		return fmt.Errorf("QUEUE_POLL_INTERVAL must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// defaultMaxAttempts keeps abuse limits tight in production while
// leaving development and test traffic effectively unthrottled.
func defaultMaxAttempts(environment string) int {
	if environment == EnvProduction {
		return 3
	}
	return 100
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
