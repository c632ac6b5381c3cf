package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/shinyyama/paychat-backend/internal/interval"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"6060"`
	GitSHA    string `env:"GIT_SHA"`
	BuildTime string `env:"BUILD_TIME"`

	DBDriver               string `env:"DB_DRIVER" envDefault:"mysql"` // mysql or sqlite
	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
	SQLitePath             string `env:"SQLITE_PATH" envDefault:"./sqlite.db"`

	InterledgerBase      string        `env:"INTERLEDGER_BASE" envDefault:"https://ilp.interledger-test.dev"`
	PublicBaseURL        string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:6060"`
	InteractCallbackPath string        `env:"INTERACT_CALLBACK_PATH" envDefault:"/api/purchases/callback"`
	Origin               string        `env:"ORIGIN" envDefault:"http://localhost:5173"`
	IncomingExpiryMins   int           `env:"INCOMING_PAYMENT_EXPIRY_MINUTES" envDefault:"10"`
	DefaultBillingISO    string        `env:"DEFAULT_BILLING_ISO" envDefault:"PT1H"`
	PendingPurchaseTTL   time.Duration `env:"PENDING_PURCHASE_TTL" envDefault:"15m"`

	ClientWalletAddressURL string        `env:"CLIENT_WALLET_ADDRESS_URL"`
	KeyID                  string        `env:"KEY_ID"`
	PrivateKeyBase64       string        `env:"PRIVATE_KEY_BASE64"`
	OpenPaymentsTimeout    time.Duration `env:"OPENPAYMENTS_TIMEOUT" envDefault:"20s"`

	Breaker BreakerConfig `envPrefix:"BREAKER_"`

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	JWTSecret         string `env:"JWT_SECRET"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
}

// BreakerConfig tunes the circuit breaker in front of the payment network.
type BreakerConfig struct {
	Enabled             bool          `env:"ENABLED" envDefault:"true"`
	MaxRequests         uint32        `env:"MAX_REQUESTS" envDefault:"1"`
	Interval            time.Duration `env:"INTERVAL" envDefault:"60s"`
	Timeout             time.Duration `env:"TIMEOUT" envDefault:"30s"`
	ConsecutiveFailures uint32        `env:"CONSECUTIVE_FAILURES" envDefault:"5"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "mysql":
		if c.DBUser == "" || c.DBHost == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_USER, DB_HOST and DB_NAME are required for mysql"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if _, err := url.ParseRequestURI(c.PublicBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL: %w", err))
	}
	if !strings.HasPrefix(c.InteractCallbackPath, "/") {
		errs = append(errs, errors.New("INTERACT_CALLBACK_PATH must start with /"))
	}
	if c.IncomingExpiryMins <= 0 {
		errs = append(errs, errors.New("INCOMING_PAYMENT_EXPIRY_MINUTES must be positive"))
	}
	if !interval.Valid(c.DefaultBillingISO) {
		errs = append(errs, fmt.Errorf("DEFAULT_BILLING_ISO %q is not a supported duration", c.DefaultBillingISO))
	}
	if c.PendingPurchaseTTL <= 0 {
		errs = append(errs, errors.New("PENDING_PURCHASE_TTL must be positive"))
	}
	if c.FirebaseProjectID == "" && c.JWTSecret == "" {
		errs = append(errs, errors.New("one of FIREBASE_PROJECT_ID or JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

// CallbackURL is where the authorization server sends the user after approval.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + c.InteractCallbackPath
}

// IncomingPaymentExpiry is the lifetime of incoming payments created for a purchase.
func (c *Config) IncomingPaymentExpiry() time.Duration {
	return time.Duration(c.IncomingExpiryMins) * time.Minute
}

// WalletURL resolves a wallet handle against INTERLEDGER_BASE. Absolute URLs
// are returned unchanged.
func (c *Config) WalletURL(handle string) string {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, "https://") || strings.HasPrefix(handle, "http://") {
		return handle
	}
	handle = strings.TrimPrefix(handle, "$")
	return strings.TrimRight(c.InterledgerBase, "/") + "/" + strings.ToLower(strings.TrimLeft(handle, "/"))
}
