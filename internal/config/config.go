package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	Mailgun   MailgunConfig   `yaml:"mailgun"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	SES       SESConfig       `yaml:"ses"`
	Send      SendConfig      `yaml:"send"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Retention RetentionConfig `yaml:"retention"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	AdminEmail string         `yaml:"admin_email"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection for distributed locks.
// When Addr is empty the workers fall back to PG advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProviderConfig selects the delivery provider and send mode.
type ProviderConfig struct {
	// Driver is one of "mailgun", "smtp", "ses".
	Driver string `yaml:"driver"`
	// BatchMode sends one provider call per chunk of recipients using
	// provider-side recipient variables. Only Mailgun supports it.
	BatchMode   bool   `yaml:"batch_mode"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
	ReplyTo     string `yaml:"reply_to"`
}

// MailgunConfig holds Mailgun API configuration
type MailgunConfig struct {
	APIKey            string `yaml:"api_key"`
	Domain            string `yaml:"domain"`
	BaseURL           string `yaml:"base_url"`
	WebhookSigningKey string `yaml:"webhook_signing_key"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MailgunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMTPConfig holds SMTP relay configuration (driver = smtp)
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SESConfig holds AWS SES v2 configuration (driver = ses)
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SendConfig holds dispatcher tuning knobs
type SendConfig struct {
	MaxPerRun      int `yaml:"max_per_run"`
	BatchSize      int `yaml:"batch_size"`
	BatchDelayMs   int `yaml:"batch_delay_ms"`
	RetryAttempts  int `yaml:"retry_attempts"`
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// BatchDelay returns the pause between provider batch calls
func (c SendConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMs) * time.Millisecond
}

// RetryBackoff returns the fixed backoff between send retries
func (c SendConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// TrackingConfig holds signed-URL settings for the open pixel and
// unsubscribe links.
type TrackingConfig struct {
	// BaseURL is the public root of the HTTP server, used to build
	// unsubscribe and pixel links placed in outgoing mail.
	BaseURL    string `yaml:"base_url"`
	SigningKey string `yaml:"signing_key"`
	// PixelTTLHours bounds how long a tracking pixel URL stays valid.
	PixelTTLHours int `yaml:"pixel_ttl_hours"`
}

// PixelTTL returns the pixel URL validity window
func (c TrackingConfig) PixelTTL() time.Duration {
	return time.Duration(c.PixelTTLHours) * time.Hour
}

// RetentionConfig controls cleanup of old failed/skipped delivery tasks
type RetentionConfig struct {
	Days int `yaml:"days"`
}

// WatchdogConfig controls the duplicate-send watchdog
type WatchdogConfig struct {
	LookbackHours int `yaml:"lookback_hours"`
	Threshold     int `yaml:"threshold"`
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

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Provider.Driver == "" {
		cfg.Provider.Driver = "smtp"
	}
	if cfg.Provider.FromAddress == "" {
		cfg.Provider.FromAddress = "hello@example.com"
	}
	if cfg.Mailgun.BaseURL == "" {
		cfg.Mailgun.BaseURL = "https://api.eu.mailgun.net"
	}
	if cfg.Mailgun.TimeoutSeconds == 0 {
		cfg.Mailgun.TimeoutSeconds = 30
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Send.MaxPerRun == 0 {
		cfg.Send.MaxPerRun = 1000
	}
	if cfg.Send.BatchSize == 0 {
		cfg.Send.BatchSize = 500
	}
	if cfg.Send.BatchDelayMs == 0 {
		cfg.Send.BatchDelayMs = 2000
	}
	if cfg.Send.RetryAttempts == 0 {
		cfg.Send.RetryAttempts = 3
	}
	if cfg.Send.RetryBackoffMs == 0 {
		cfg.Send.RetryBackoffMs = 60000
	}
	if cfg.Tracking.PixelTTLHours == 0 {
		cfg.Tracking.PixelTTLHours = 24 * 30
	}
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 7
	}
	if cfg.Watchdog.LookbackHours == 0 {
		cfg.Watchdog.LookbackHours = 1
	}
	if cfg.Watchdog.Threshold == 0 {
		cfg.Watchdog.Threshold = 2
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if driver := os.Getenv("MAIL_DRIVER"); driver != "" {
		cfg.Provider.Driver = driver
	}
	if v := os.Getenv("MAIL_FROM_ADDRESS"); v != "" {
		cfg.Provider.FromAddress = v
	}
	if v := os.Getenv("MAIL_FROM_NAME"); v != "" {
		cfg.Provider.FromName = v
	}
	if v := os.Getenv("MAIL_REPLY_TO"); v != "" {
		cfg.Provider.ReplyTo = v
	}
	if apiKey := os.Getenv("MAILGUN_API_KEY"); apiKey != "" {
		cfg.Mailgun.APIKey = apiKey
	}
	if domain := os.Getenv("MAILGUN_DOMAIN"); domain != "" {
		cfg.Mailgun.Domain = domain
	}
	if baseURL := os.Getenv("MAILGUN_BASE_URL"); baseURL != "" {
		cfg.Mailgun.BaseURL = baseURL
	}
	if key := os.Getenv("MAILGUN_WEBHOOK_SIGNING_KEY"); key != "" {
		cfg.Mailgun.WebhookSigningKey = key
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTP.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.SMTP.Port = p
		}
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		cfg.SMTP.Username = user
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.SMTP.Password = pass
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("SIGNING_KEY"); v != "" {
		cfg.Tracking.SigningKey = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		cfg.AdminEmail = v
	}

	return cfg, nil
}
