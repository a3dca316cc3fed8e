// Package config loads the checkout service configuration from the
// environment, an optional .env file and an optional TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	checkout "github.com/payelement/checkout/go"
	"github.com/payelement/checkout/go/decoupled"
	"github.com/payelement/checkout/go/extensions/ratelimit"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Environment variables
const (
	VarEnv              = "CHECKOUT_ENV"
	VarPort             = "PORT"
	VarStripeKey        = "STRIPE_SECRET_KEY"
	VarTokenSecret      = "CHECKOUT_TOKEN_SECRET"
	VarDatabaseURL      = "DATABASE_URL"
	VarRedisAddr        = "REDIS_ADDR"
	VarOrderReceivedURL = "CHECKOUT_ORDER_RECEIVED_URL"
	VarStoreURL         = "CHECKOUT_STORE_URL"
	VarDecoupled        = "CHECKOUT_DECOUPLED"
	VarActivePlugins    = "CHECKOUT_ACTIVE_PLUGINS"
	VarAllowlist        = "CHECKOUT_ADAPTED_EXTENSIONS"
	VarConfigFile       = "CHECKOUT_CONFIG_FILE"
)

// Duration is a time.Duration written as a Go duration string ("10m")
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// RateLimit configures the duplicate payment guard
type RateLimit struct {
	// Threshold is the number of declines a session may accumulate
	// (optional, defaults to checkout.DefaultAttemptThreshold)
	Threshold int `toml:"threshold" validate:"gt=0"`
	// Window is how long declines are counted (optional, defaults to 10m)
	Window Duration `toml:"window"`
}

// File is the shape of the TOML config file
type File struct {
	AdaptedExtensions []string                       `toml:"adapted_extensions"`
	RateLimit         *RateLimit                     `toml:"rate_limit"`
	PaymentMethods    []checkout.PaymentMethodConfig `toml:"payment_methods" validate:"dive"`
	Languages         []string                       `toml:"languages"`
}

// Config is the checkout service configuration
type Config struct {
	// Env selects logging and gin modes (optional, defaults to development)
	Env string `validate:"oneof=development production"`
	// Port is the HTTP listen port (optional, defaults to 8080)
	Port string `validate:"required"`
	// StripeKey is the processor secret key
	StripeKey string `validate:"required"`
	// TokenSecret signs cart tokens
	TokenSecret string `validate:"min=32"`
	// DatabaseURL selects the Postgres store (optional, in-memory when empty)
	DatabaseURL string
	// RedisAddr selects the Redis rate-limit registry (optional, in-memory when empty)
	RedisAddr string
	// OrderReceivedURL prefixes the order id for paid orders
	OrderReceivedURL string `validate:"omitempty,url"`
	// StoreURL is the store the cart and order totals are read from
	StoreURL string `validate:"required,url"`

	// DecoupledEnabled turns on decoupled checkout identity resolution
	// (optional, defaults to false)
	DecoupledEnabled bool
	// ActivePlugins are the active store plugins affecting session state
	ActivePlugins []string

	Allowlist      decoupled.Allowlist
	RateLimit      RateLimit
	PaymentMethods []checkout.PaymentMethodConfig `validate:"dive"`
	Languages      []string
}

// GetEnv returns the environment value for key, or fallback when unset or empty
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// Load reads .env files if present, then the environment and the optional
// TOML file named by CHECKOUT_CONFIG_FILE. The result is validated.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Env:              GetEnv(VarEnv, EnvDevelopment),
		Port:             GetEnv(VarPort, "8080"),
		StripeKey:        GetEnv(VarStripeKey, ""),
		TokenSecret:      GetEnv(VarTokenSecret, ""),
		DatabaseURL:      GetEnv(VarDatabaseURL, ""),
		RedisAddr:        GetEnv(VarRedisAddr, ""),
		OrderReceivedURL: GetEnv(VarOrderReceivedURL, ""),
		StoreURL:         GetEnv(VarStoreURL, ""),
		ActivePlugins:    decoupled.ParseAllowlist(GetEnv(VarActivePlugins, "")),
		Allowlist:        decoupled.ParseAllowlist(GetEnv(VarAllowlist, "")),
		RateLimit: RateLimit{
			Threshold: checkout.DefaultAttemptThreshold,
			Window:    Duration{ratelimit.DefaultWindow},
		},
	}

	if v := GetEnv(VarDecoupled, ""); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, VarDecoupled, v)
		}
		cfg.DecoupledEnabled = enabled
	}

	if path := GetEnv(VarConfigFile, ""); path != "" {
		file, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.apply(file)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile decodes the TOML config file at path
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFile, path, err)
	}
	return ParseFile(data)
}

// ParseFile decodes TOML config data. Unknown keys are rejected.
func ParseFile(data []byte) (*File, error) {
	var file File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFile, err)
	}
	return &file, nil
}

// apply overlays the file on the environment values. The file allowlist is
// appended to the environment one.
func (c *Config) apply(f *File) {
	for _, plugin := range f.AdaptedExtensions {
		if !c.Allowlist.Contains(plugin) {
			c.Allowlist = append(c.Allowlist, plugin)
		}
	}
	if f.RateLimit != nil {
		if f.RateLimit.Threshold != 0 {
			c.RateLimit.Threshold = f.RateLimit.Threshold
		}
		if f.RateLimit.Window.Duration != 0 {
			c.RateLimit.Window = f.RateLimit.Window
		}
	}
	if len(f.PaymentMethods) > 0 {
		c.PaymentMethods = f.PaymentMethods
	}
	if len(f.Languages) > 0 {
		c.Languages = f.Languages
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

var validate = validator.New()

// fieldErrors maps the failing struct field to its sentinel
var fieldErrors = map[string]error{
	"Env":              ErrInvalidEnv,
	"Port":             ErrMissingPort,
	"StripeKey":        ErrMissingStripeKey,
	"TokenSecret":      ErrInvalidTokenSecret,
	"OrderReceivedURL": ErrInvalidReturnURL,
	"StoreURL":         ErrInvalidStoreURL,
	"Threshold":        ErrInvalidThreshold,
	"Type":             ErrInvalidMethod,
}

// Validate checks the configuration. The first failing field is reported
// as one of the sentinel errors of this package.
func (c *Config) Validate() error {
	if c.RateLimit.Window.Duration <= 0 {
		return ErrInvalidWindow
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	fe := fields[0]
	if sentinel, ok := fieldErrors[fe.StructField()]; ok {
		return sentinel
	}
	return fmt.Errorf("%w: %s failed %s", ErrInvalidConfig, fe.Namespace(), fe.Tag())
}
