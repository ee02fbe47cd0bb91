package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once at startup and
// passed by reference; nothing reads environment variables after Load returns.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// PublicBaseURL is the externally reachable base URL, used to build
	// provider notify/return URLs.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPClientConfig holds outbound HTTP client configuration.
type HTTPClientConfig struct {
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
}

// PaymentConfig holds payment provider configuration.
type PaymentConfig struct {
	// Environment is "sandbox" or "production"; provider constructors refuse
	// anything else.
	Environment string        `mapstructure:"environment"`
	Retry       RetryConfig   `mapstructure:"retry"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
	Wave        WaveConfig    `mapstructure:"wave"`
	OrangeMoney OrangeConfig  `mapstructure:"orange_money"`
	Stripe      StripeConfig  `mapstructure:"stripe"`
	// OrderExpiry is how long a pending checkout stays payable.
	OrderExpiry time.Duration `mapstructure:"order_expiry"`
}

// RetryConfig holds outbound call retry policy.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// BreakerConfig holds circuit breaker settings for provider calls.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxHalfOpen      uint32        `mapstructure:"max_half_open"`
}

// WaveConfig holds Wave checkout API credentials.
type WaveConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// OrangeConfig holds Orange Money web payment API credentials.
type OrangeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	MerchantKey   string `mapstructure:"merchant_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// AuditConfig holds audit log configuration.
type AuditConfig struct {
	// Archive enables raw payload archival to S3-compatible storage.
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ArchiveConfig holds object storage settings for audit payload archival.
type ArchiveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
}

// AuthConfig holds admin API authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/terangashop")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("TERANGA")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if password := os.Getenv("TERANGA_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("TERANGA_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if secret := os.Getenv("TERANGA_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if key := os.Getenv("TERANGA_WAVE_API_KEY"); key != "" {
		cfg.Payment.Wave.APIKey = key
	}
	if secret := os.Getenv("TERANGA_WAVE_WEBHOOK_SECRET"); secret != "" {
		cfg.Payment.Wave.WebhookSecret = secret
	}
	if secret := os.Getenv("TERANGA_ORANGE_CLIENT_SECRET"); secret != "" {
		cfg.Payment.OrangeMoney.ClientSecret = secret
	}
	if secret := os.Getenv("TERANGA_ORANGE_WEBHOOK_SECRET"); secret != "" {
		cfg.Payment.OrangeMoney.WebhookSecret = secret
	}
	if key := os.Getenv("TERANGA_STRIPE_API_KEY"); key != "" {
		cfg.Payment.Stripe.APIKey = key
	}
	if secret := os.Getenv("TERANGA_STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Payment.Stripe.WebhookSecret = secret
	}
	if key := os.Getenv("TERANGA_ARCHIVE_SECRET_KEY"); key != "" {
		cfg.Audit.Archive.SecretAccessKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required settings are present. Missing provider secrets
// are a startup error, never a silent default.
func (c *Config) Validate() error {
	if c.Payment.Environment != "sandbox" && c.Payment.Environment != "production" {
		return fmt.Errorf("payment.environment must be sandbox or production, got %q", c.Payment.Environment)
	}
	if c.Server.PublicBaseURL == "" {
		return fmt.Errorf("server.public_base_url is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Payment.Wave.Enabled {
		if c.Payment.Wave.APIKey == "" {
			return fmt.Errorf("payment.wave.api_key is required when wave is enabled")
		}
		if c.Payment.Wave.WebhookSecret == "" {
			return fmt.Errorf("payment.wave.webhook_secret is required when wave is enabled")
		}
	}
	if c.Payment.OrangeMoney.Enabled {
		switch {
		case c.Payment.OrangeMoney.ClientID == "":
			return fmt.Errorf("payment.orange_money.client_id is required when orange money is enabled")
		case c.Payment.OrangeMoney.ClientSecret == "":
			return fmt.Errorf("payment.orange_money.client_secret is required when orange money is enabled")
		case c.Payment.OrangeMoney.MerchantKey == "":
			return fmt.Errorf("payment.orange_money.merchant_key is required when orange money is enabled")
		case c.Payment.OrangeMoney.WebhookSecret == "":
			return fmt.Errorf("payment.orange_money.webhook_secret is required when orange money is enabled")
		}
	}
	if c.Payment.Stripe.Enabled {
		if c.Payment.Stripe.APIKey == "" {
			return fmt.Errorf("payment.stripe.api_key is required when stripe is enabled")
		}
		if c.Payment.Stripe.WebhookSecret == "" {
			return fmt.Errorf("payment.stripe.webhook_secret is required when stripe is enabled")
		}
	}
	if c.Audit.Archive.Enabled && c.Audit.Archive.Bucket == "" {
		return fmt.Errorf("audit.archive.bucket is required when archival is enabled")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "terangashop")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// HTTP client defaults
	v.SetDefault("http_client.dial_timeout", 5*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 10)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 30*time.Second)

	// Payment defaults
	v.SetDefault("payment.environment", "sandbox")
	v.SetDefault("payment.order_expiry", 30*time.Minute)
	v.SetDefault("payment.retry.max_attempts", 3)
	v.SetDefault("payment.retry.initial_delay", 2*time.Second)
	v.SetDefault("payment.retry.max_delay", 30*time.Second)
	v.SetDefault("payment.breaker.failure_threshold", 5)
	v.SetDefault("payment.breaker.timeout", 60*time.Second)
	v.SetDefault("payment.breaker.max_half_open", 1)
	v.SetDefault("payment.wave.base_url", "https://api.wave.com")
	v.SetDefault("payment.orange_money.base_url", "https://api.orange.com")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
