package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (FEAST_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (FEAST_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images" flag:"image-base-url"`
	Storage      StorageConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Auth         AuthConfig
	Bus          BusConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StorageConfig selects the order and product store.
type StorageConfig struct {
	Driver  string `default:"postgres" usage:"Storage driver: postgres or memory"`
	Migrate bool   `default:"true" usage:"Apply the schema on first connect"`
}

// RedisConfig enables the product catalog cache when Addr is set.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address (host:port); empty disables the cache"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"5m" usage:"Product cache TTL"`
}

// StripeConfig holds payment provider credentials.
type StripeConfig struct {
	SecretKey     string `usage:"Stripe secret key (FEAST_STRIPE_SECRET_KEY or STRIPE_SECRET_KEY)"`
	WebhookSecret string `usage:"Stripe webhook signing secret (FEAST_STRIPE_WEBHOOK_SECRET or STRIPE_WEBHOOK_SECRET)"`
	Currency      string `default:"usd" usage:"Checkout currency"`
}

// CheckoutConfig controls the checkout flow.
type CheckoutConfig struct {
	TestPayment bool `default:"false" usage:"Bypass the payment provider and create paid test orders" flag:"test-payment"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string        `usage:"HMAC secret for bearer tokens (FEAST_AUTH_JWT_SECRET or JWT_SECRET)"`
	TokenTTL  time.Duration `default:"168h" usage:"Lifetime of issued tokens"`
}

// BusConfig tunes the notification bus.
type BusConfig struct {
	SendBuffer   int           `default:"16" usage:"Per-connection event buffer"`
	PingInterval time.Duration `default:"30s" usage:"WebSocket keepalive interval"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FEAST",
		Files:     []string{"config.yaml", "/etc/feast/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that cannot start a server.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set FEAST_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required: set FEAST_AUTH_JWT_SECRET or JWT_SECRET")
	}
	if !c.Checkout.TestPayment && c.Stripe.SecretKey == "" {
		return errors.New("stripe secret key is required unless checkout test payment is enabled")
	}
	return nil
}

// applyPlatformDefaults maps the unprefixed variables set by hosting
// platforms (DATABASE_URL, PORT, STRIPE_*, JWT_SECRET) onto the config.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	fallback(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	fallback(&c.Auth.JWTSecret, "JWT_SECRET")
	if os.Getenv("TEST_PAYMENT") == "true" {
		c.Checkout.TestPayment = true
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
