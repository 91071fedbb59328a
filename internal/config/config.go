// Package config содержит логику чтения конфигурации сервиса синхронизации заказов.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mmeshcher/ordersync/internal/validation"
)

// Config содержит параметры конфигурации сервиса синхронизации заказов.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	QueuePath   string `env:"QUEUE_PATH"`
	LogPath     string `env:"LOG_PATH"`
	LogLevel    string `env:"LOG_LEVEL"`
	DatabaseURI string `env:"DATABASE_URI"`
	ReplayFile  string `env:"REPLAY_FILE"`

	UIUsername string `env:"UI_USERNAME"`
	UIPassword string `env:"UI_PASSWORD"`

	PollInterval   time.Duration `env:"POLL_INTERVAL"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"33554432" validate:"gt=0"`

	Shopware Shopware
	Mapping  Mapping
}

// Shopware содержит параметры доступа к REST API магазина.
type Shopware struct {
	APIURL            string        `env:"SHOPWARE_API_URL" validate:"required,url"`
	Username          string        `env:"SHOPWARE_API_USERNAME" validate:"required"`
	APIKey            string        `env:"SHOPWARE_API_KEY" validate:"required"`
	Timeout           time.Duration `env:"SHOPWARE_TIMEOUT" envDefault:"30s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"5"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY" envDefault:"2s"`
	MaxAttempts       int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
}

// Mapping содержит статические ссылки, подставляемые в создаваемые заказы.
type Mapping struct {
	KeyColumn        string  `env:"KEY_COLUMN" envDefault:"OrderID" validate:"required"`
	PaymentMethodID  int     `env:"SHOPWARE_PAYMENT_METHOD_ID" validate:"gt=0"`
	ShippingMethodID int     `env:"SHOPWARE_SHIPPING_METHOD_ID" validate:"gt=0"`
	CountryID        int     `env:"SHOPWARE_COUNTRY_ID" validate:"gt=0"`
	ShopID           int     `env:"SHOPWARE_SHOP_ID" envDefault:"1" validate:"gt=0"`
	CustomerGroup    string  `env:"SHOPWARE_CUSTOMER_GROUP" envDefault:"TK" validate:"required"`
	OrderStatusID    int     `env:"SHOPWARE_ORDER_STATUS_ID" envDefault:"1"`
	PaymentStatusID  int     `env:"SHOPWARE_PAYMENT_STATUS_ID" envDefault:"12"`
	Currency         string  `env:"CURRENCY" envDefault:"EUR" validate:"len=3"`
	DefaultTaxRate   float64 `env:"DEFAULT_TAX_RATE" envDefault:"19"`
	DefaultTaxID     int     `env:"DEFAULT_TAX_ID" envDefault:"1" validate:"gt=0"`
	ShippingTaxRate  float64 `env:"SHIPPING_TAX_RATE" envDefault:"19"`
	GuestEmailDomain string  `env:"GUEST_EMAIL_DOMAIN" envDefault:"marketplace.invalid" validate:"required"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами. Конфигурация без обязательных
// параметров магазина отклоняется.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.QueuePath, "q", "queue", "queue directory for uploaded files")
	flag.StringVar(&cfg.LogPath, "l", "", "log file path")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "sync journal database URI")
	flag.StringVar(&cfg.ReplayFile, "replay", "", "process a single file and exit")
	flag.DurationVar(&cfg.PollInterval, "i", 300*time.Second, "queue poll interval")
	flag.StringVar(&cfg.Shopware.APIURL, "s", "", "shopware API base URL")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.QueuePath != "" {
		cfg.QueuePath = envCfg.QueuePath
	}
	if envCfg.LogPath != "" {
		cfg.LogPath = envCfg.LogPath
	}
	if envCfg.LogLevel != "" {
		cfg.LogLevel = envCfg.LogLevel
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.ReplayFile != "" {
		cfg.ReplayFile = envCfg.ReplayFile
	}
	if envCfg.PollInterval != 0 {
		cfg.PollInterval = envCfg.PollInterval
	}
	if envCfg.Shopware.APIURL != "" {
		cfg.Shopware.APIURL = envCfg.Shopware.APIURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 300 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет адрес и учётные данные API и ссылки, подставляемые в заказы.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate проверяет ссылки, подставляемые в заказы.
func (m Mapping) Validate() error {
	if err := validation.Struct(m); err != nil {
		return fmt.Errorf("invalid mapping: %w", err)
	}
	return nil
}
