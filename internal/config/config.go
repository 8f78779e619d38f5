package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Providers ProvidersConfig
	SMTP      SMTPConfig
	Dispatch  DispatchConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

// ProvidersConfig holds the per-channel gateway credentials. A channel with
// empty credentials is treated as not configured, never as an error at boot.
type ProvidersConfig struct {
	WhatsApp      WhatsAppConfig `mapstructure:"whatsapp"`
	SMS           SMSConfig      `mapstructure:"sms"`
	Voice         VoiceConfig    `mapstructure:"voice"`
	CallerNumber  string         `mapstructure:"caller_number"`
	DefaultRegion string         `mapstructure:"default_region"`
}

type WhatsAppConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Token     string `mapstructure:"token"`
	FromPhone string `mapstructure:"from_phone"`
}

type SMSConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	SenderName string `mapstructure:"sender_name"`
}

type VoiceConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type DispatchConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	WindowDelay    time.Duration `mapstructure:"window_delay"`
	PoolWorkers    int           `mapstructure:"pool_workers"`
	PoolBuffer     int           `mapstructure:"pool_buffer"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ReconcileEvery time.Duration `mapstructure:"reconcile_every"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
