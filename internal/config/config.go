// Package config loads runtime settings from the environment.
//
// Outside production a .env file in the working directory is loaded first,
// so local development only needs `cp .env.example .env`. Variables already
// present in the environment always win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every setting the binary reads at startup.
type Config struct {
	Environment string
	Port        int
	DBPath      string

	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	CORSAllowedOrigins []string

	Accounting AccountingConfig
	Policy     PolicyConfig
	Notify     NotifyConfig
	Mail       MailConfig
}

// AccountingConfig holds the certificate thresholds.
type AccountingConfig struct {
	EventCertificateHours  int
	GlobalCertificateHours int
}

// PolicyConfig holds the authorization and lifecycle policies.
type PolicyConfig struct {
	HoursOnUnregister string // "retain" | "exclude"
	EnforceCapacity   bool
	EventCreateRole   string // minimum role allowed to create events
	EventDeletePolicy string // "owner" | "organizer" | "any"
}

// NotifyConfig selects the notification backend.
type NotifyConfig struct {
	Backend     string // "memory" | "rabbitmq"
	RabbitMQURL string
}

// MailConfig selects and configures the certificate mailer.
type MailConfig struct {
	Provider           string // "noop" | "ses"
	FromAddress        string
	FromName           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// Load reads the configuration. It returns an error for values that are
// present but malformed; missing values fall back to defaults.
func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	if env != "production" {
		// A missing .env is normal; the environment alone is enough.
		_ = godotenv.Load()
	}

	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	eventHours, err := getEnvInt("EVENT_CERTIFICATE_HOURS", 100)
	if err != nil {
		return nil, err
	}
	globalHours, err := getEnvInt("GLOBAL_CERTIFICATE_HOURS", 500)
	if err != nil {
		return nil, err
	}
	enforceCapacity, err := getEnvBool("ENFORCE_CAPACITY", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:        env,
		Port:               port,
		DBPath:             getEnv("DB_PATH", "data/servicehours.db"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		Accounting: AccountingConfig{
			EventCertificateHours:  eventHours,
			GlobalCertificateHours: globalHours,
		},
		Policy: PolicyConfig{
			HoursOnUnregister: getEnv("HOURS_ON_UNREGISTER", "retain"),
			EnforceCapacity:   enforceCapacity,
			EventCreateRole:   getEnv("EVENT_CREATE_ROLE", "organizer"),
			EventDeletePolicy: getEnv("EVENT_DELETE_POLICY", "owner"),
		},
		Notify: NotifyConfig{
			Backend:     getEnv("NOTIFY_BACKEND", "memory"),
			RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		},
		Mail: MailConfig{
			Provider:           getEnv("MAIL_PROVIDER", "noop"),
			FromAddress:        getEnv("MAIL_FROM_ADDRESS", "no-reply@servicehours.local"),
			FromName:           getEnv("MAIL_FROM_NAME", "Service Hours"),
			AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
			AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Accounting.EventCertificateHours <= 0 {
		return fmt.Errorf("config: EVENT_CERTIFICATE_HOURS must be positive")
	}
	if c.Accounting.GlobalCertificateHours <= 0 {
		return fmt.Errorf("config: GLOBAL_CERTIFICATE_HOURS must be positive")
	}
	switch c.Policy.HoursOnUnregister {
	case "retain", "exclude":
	default:
		return fmt.Errorf("config: HOURS_ON_UNREGISTER must be retain or exclude, got %q", c.Policy.HoursOnUnregister)
	}
	switch c.Policy.EventDeletePolicy {
	case "owner", "organizer", "any":
	default:
		return fmt.Errorf("config: EVENT_DELETE_POLICY must be owner, organizer or any, got %q", c.Policy.EventDeletePolicy)
	}
	switch c.Policy.EventCreateRole {
	case "volunteer", "organizer", "admin":
	default:
		return fmt.Errorf("config: EVENT_CREATE_ROLE must be volunteer, organizer or admin, got %q", c.Policy.EventCreateRole)
	}
	switch c.Notify.Backend {
	case "memory":
	case "rabbitmq":
		if c.Notify.RabbitMQURL == "" {
			return fmt.Errorf("config: RABBITMQ_URL is required when NOTIFY_BACKEND=rabbitmq")
		}
	default:
		return fmt.Errorf("config: NOTIFY_BACKEND must be memory or rabbitmq, got %q", c.Notify.Backend)
	}
	return nil
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, valueStr)
	}
	return value, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean, got %q", key, valueStr)
	}
	return value, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
