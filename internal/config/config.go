package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BaseURL      string        `yaml:"base_url"`     // public API origin, used for webhook callback URLs
	FrontendURL  string        `yaml:"frontend_url"` // where providers send the buyer back
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	AdminIDs  []string `yaml:"admin_ids"`
}

type MercadoPagoConfig struct {
	AccessToken   string `yaml:"access_token"`
	WebhookSecret string `yaml:"webhook_secret"`
	Sandbox       bool   `yaml:"sandbox"`
}

type NOWPaymentsConfig struct {
	APIKey    string  `yaml:"api_key"`
	IPNSecret string  `yaml:"ipn_secret"`
	Sandbox   bool    `yaml:"sandbox"`
	BRLPerUSD float64 `yaml:"brl_per_usd"` // crypto invoices are priced in USD
}

type PayPalConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	WebhookID    string `yaml:"webhook_id"`
	Sandbox      bool   `yaml:"sandbox"`
}

type ProvidersConfig struct {
	MercadoPago MercadoPagoConfig `yaml:"mercadopago"`
	NOWPayments NOWPaymentsConfig `yaml:"nowpayments"`
	PayPal      PayPalConfig      `yaml:"paypal"`
}

// CollaboratorsConfig points at the sibling services the settlement core
// signals. Empty URLs fall back to logging stubs.
type CollaboratorsConfig struct {
	ContentURL    string `yaml:"content_url"`
	ProfileURL    string `yaml:"profile_url"`
	NotifyChannel string `yaml:"notify_channel"`
}

type SchedulerConfig struct {
	ExpiryInterval    time.Duration `yaml:"expiry_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileMinAge   time.Duration `yaml:"reconcile_min_age"` // leave fresh pendings to webhooks
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Collaborators CollaboratorsConfig `yaml:"collaborators"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Metrics       MetricsConfig       `yaml:"metrics"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Providers.NOWPayments.BRLPerUSD <= 0 {
		cfg.Providers.NOWPayments.BRLPerUSD = 5.0
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = time.Hour
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = 10 * time.Minute
	}
	if cfg.Scheduler.ReconcileMinAge <= 0 {
		cfg.Scheduler.ReconcileMinAge = 15 * time.Minute
	}
	if cfg.Metrics.Port <= 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Collaborators.NotifyChannel == "" {
		cfg.Collaborators.NotifyChannel = "fanpay:notifications"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	if cfg.Auth.JWTSecret == "" && !dev {
		return nil, errors.New("auth.jwt_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
