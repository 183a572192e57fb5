// Package config builds the service configuration from the environment
// (optionally seeded by .env) and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string        `mapstructure:"env"`
	HTTP     HTTPConfig    `mapstructure:"http"`
	DB       DBConfig      `mapstructure:"db"`
	Log      LogConfig     `mapstructure:"log"`
	Auth     AuthConfig    `mapstructure:"auth"`
	Gateway  GatewayConfig `mapstructure:"gateway"`
	Iugu     IuguConfig    `mapstructure:"iugu"`
	Asaas    AsaasConfig   `mapstructure:"asaas"`
	Pix      PixConfig     `mapstructure:"pix"`
	Invoice  InvoiceConfig `mapstructure:"invoice"`
	AMQP     AMQPConfig    `mapstructure:"amqp"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
	Storage  StorageConfig `mapstructure:"storage"`
	S3       S3Config      `mapstructure:"s3"`
	Declines DeclineConfig `mapstructure:"declines"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	APIToken   string `mapstructure:"api_token"`
	AdminToken string `mapstructure:"admin_token"`
}

type GatewayConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	TokenCacheTTL   time.Duration `mapstructure:"token_cache_ttl"`
	DefaultProvider string        `mapstructure:"default_provider"`
}

type IuguConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	MasterToken  string `mapstructure:"master_token"`
	Sandbox      bool   `mapstructure:"sandbox"`
	WebhookToken string `mapstructure:"webhook_token"`
}

type AsaasConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	WebhookToken string `mapstructure:"webhook_token"`
}

type PixConfig struct {
	PollAttempts int           `mapstructure:"poll_attempts"`
	PollDelay    time.Duration `mapstructure:"poll_delay"`
}

type InvoiceConfig struct {
	DueDays        int    `mapstructure:"due_days"`
	WebhookBaseURL string `mapstructure:"webhook_base_url"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type SMTPConfig struct {
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Pass          string `mapstructure:"pass"`
	TLSMode       string `mapstructure:"tls_mode"`
	SkipVerifyTLS bool   `mapstructure:"skip_verify_tls"`
	From          string `mapstructure:"from"`
	FromName      string `mapstructure:"from_name"`
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	LocalDir  string `mapstructure:"local_dir"`
	URLPrefix string `mapstructure:"url_prefix"`
}

type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type DeclineConfig struct {
	CodesFile string `mapstructure:"codes_file"`
}

var defaults = map[string]any{
	"env":                      "development",
	"http.addr":                ":8080",
	"db.dsn":                   "",
	"log.level":                "info",
	"auth.api_token":           "",
	"auth.admin_token":         "",
	"gateway.timeout":          "20s",
	"gateway.token_cache_ttl":  "1h",
	"gateway.default_provider": "iugu",
	"iugu.base_url":            "https://api.iugu.com",
	"iugu.master_token":        "",
	"iugu.sandbox":             false,
	"iugu.webhook_token":       "",
	"asaas.base_url":           "https://api.asaas.com",
	"asaas.api_key":            "",
	"asaas.webhook_token":      "",
	"pix.poll_attempts":        3,
	"pix.poll_delay":           "2s",
	"invoice.due_days":         1,
	"invoice.webhook_base_url": "",
	"amqp.url":                 "",
	"amqp.exchange":            "payments",
	"smtp.host":                "",
	"smtp.port":                "587",
	"smtp.user":                "",
	"smtp.pass":                "",
	"smtp.tls_mode":            "starttls",
	"smtp.skip_verify_tls":     false,
	"smtp.from":                "",
	"smtp.from_name":           "Vistoria",
	"storage.driver":           "local",
	"storage.local_dir":        "./storage/qrcodes",
	"storage.url_prefix":       "/qrcodes",
	"s3.region":                "",
	"s3.bucket":                "",
	"s3.prefix":                "qrcodes",
	"s3.public_base_url":       "",
	"declines.codes_file":      "",
}

// Load reads configFile (YAML, optional) and then the environment, where
// nested keys are upper-cased and joined with underscores: iugu.master_token
// is IUGU_MASTER_TOKEN.
func Load(configFile string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// legacy names used by the deployment scripts
	_ = v.BindEnv("db.dsn", "DB_DSN")
	_ = v.BindEnv("env", "APP_ENV")
	_ = v.BindEnv("auth.api_token", "API_TOKEN")
	_ = v.BindEnv("auth.admin_token", "ADMIN_TOKEN")
	_ = v.BindEnv("invoice.webhook_base_url", "WEBHOOK_BASE_URL")
	_ = v.BindEnv("invoice.due_days", "INVOICE_DUE_DAYS")
	_ = v.BindEnv("declines.codes_file", "DECLINE_CODES_FILE")

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Validate reports every setting the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.Iugu.MasterToken == "" {
		errs = append(errs, errors.New("IUGU_MASTER_TOKEN is required"))
	}
	if c.Auth.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}
	if c.Auth.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN is required"))
	}
	switch c.Gateway.DefaultProvider {
	case "iugu":
	case "asaas":
		if c.Asaas.APIKey == "" {
			errs = append(errs, errors.New("ASAAS_API_KEY is required when asaas is the default provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_DEFAULT_PROVIDER %q is not iugu or asaas", c.Gateway.DefaultProvider))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	if c.Pix.PollAttempts < 0 || c.Pix.PollAttempts > 10 {
		errs = append(errs, errors.New("PIX_POLL_ATTEMPTS must be between 0 and 10"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
