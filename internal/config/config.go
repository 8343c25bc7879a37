package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIURL                 string        `mapstructure:"API_URL"`
	Env                    string        `mapstructure:"ENV"`
	Port                   string        `mapstructure:"PORT"`
	DBPath                 string        `mapstructure:"DB_PATH"`
	LogLevel               string        `mapstructure:"LOG_LEVEL"`
	PollInterval           time.Duration `mapstructure:"POLL_INTERVAL"`
	RequestTimeout         time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RefreshMinVisible      time.Duration `mapstructure:"REFRESH_MIN_VISIBLE"`
	TokenPassphrase        string        `mapstructure:"TOKEN_PASSPHRASE"`
	PaymentCallbackTimeout time.Duration `mapstructure:"PAYMENT_CALLBACK_TIMEOUT"`
}

var keys = []string{
	"API_URL",
	"ENV",
	"PORT",
	"DB_PATH",
	"LOG_LEVEL",
	"POLL_INTERVAL",
	"REQUEST_TIMEOUT",
	"REFRESH_MIN_VISIBLE",
	"TOKEN_PASSPHRASE",
	"PAYMENT_CALLBACK_TIMEOUT",
}

// Load reads CLINICDESK_* environment variables and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetEnvPrefix("CLINICDESK")
	v.AutomaticEnv()

	v.SetDefault("ENV", "production")
	v.SetDefault("PORT", "8085")
	v.SetDefault("DB_PATH", "clinicdesk.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("POLL_INTERVAL", "3s")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("REFRESH_MIN_VISIBLE", "500ms")
	v.SetDefault("PAYMENT_CALLBACK_TIMEOUT", "10m")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the API URL and the timing knobs.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("CLINICDESK_API_URL is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("CLINICDESK_API_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("CLINICDESK_API_URL must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("CLINICDESK_API_URL has no host")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("CLINICDESK_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.RequestTimeout < time.Second || c.RequestTimeout > time.Minute {
		return fmt.Errorf("CLINICDESK_REQUEST_TIMEOUT must be between 1s and 1m, got %s", c.RequestTimeout)
	}
	if c.RefreshMinVisible < 0 {
		return fmt.Errorf("CLINICDESK_REFRESH_MIN_VISIBLE must not be negative")
	}
	if c.PaymentCallbackTimeout <= 0 {
		return fmt.Errorf("CLINICDESK_PAYMENT_CALLBACK_TIMEOUT must be positive")
	}
	return nil
}
