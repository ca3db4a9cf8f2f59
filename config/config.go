package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	defaultPort           = "8000"
	defaultDatabase       = "freshmart"
	defaultLogLevel       = "info"
	defaultEmailProvider  = "none"
	defaultExchange       = "freshmart.events"
	defaultSweepInterval  = time.Hour
	defaultSweepLockTTL   = 5 * time.Minute
	defaultRequestTimeout = 10 * time.Second
	defaultOrderPrefix    = "ORD"
	defaultTimezone       = "UTC"
)

// Email providers.
const (
	EmailProviderSendGrid = "sendgrid"
	EmailProviderPostmark = "postmark"
	EmailProviderNone     = "none"
)

// Config is the runtime configuration of the storefront service.
type Config struct {
	Port           string
	LogLevel       string
	JWTSecret      string
	RequestTimeout time.Duration

	Mongo  MongoConfig
	Email  EmailConfig
	AMQP   AMQPConfig
	Redis  RedisConfig
	Orders OrderConfig
	Sweep  SweepConfig

	BusinessLocation *time.Location
}

// MongoConfig configures the document store.
type MongoConfig struct {
	URI          string
	Database     string
	Transactions bool
}

// EmailConfig selects and configures the customer email provider.
type EmailConfig struct {
	Provider       string
	SendGridAPIKey string
	PostmarkToken  string
	Sender         string
}

// AMQPConfig configures the domain event exchange. An empty URL disables publishing.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// RedisConfig configures the sweep lease. An empty address sweeps without a lease.
type RedisConfig struct {
	Addr string
}

// OrderConfig holds order numbering settings.
type OrderConfig struct {
	NumberPrefix string
}

// SweepConfig schedules the subscription expiry sweep.
type SweepConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds and validates a Config from lookup.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	var problems []error
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := durationWithDefault(lookup, key, fallback)
		if err != nil {
			problems = append(problems, err)
		}
		return d
	}
	boolean := func(key string, fallback bool) bool {
		b, err := boolWithDefault(lookup, key, fallback)
		if err != nil {
			problems = append(problems, err)
		}
		return b
	}

	cfg := Config{
		Port:           stringWithDefault(lookup, "PORT", defaultPort),
		LogLevel:       strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		JWTSecret:      stringWithDefault(lookup, "JWT_SECRET", ""),
		RequestTimeout: duration("REQUEST_TIMEOUT", defaultRequestTimeout),
		Mongo: MongoConfig{
			URI:          stringWithDefault(lookup, "MONGO_URI", ""),
			Database:     stringWithDefault(lookup, "MONGO_DATABASE", defaultDatabase),
			Transactions: boolean("MONGO_TRANSACTIONS", true),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(stringWithDefault(lookup, "EMAIL_PROVIDER", defaultEmailProvider)),
			SendGridAPIKey: stringWithDefault(lookup, "SENDGRID_API_KEY", ""),
			PostmarkToken:  stringWithDefault(lookup, "POSTMARK_API_TOKEN", ""),
			Sender:         stringWithDefault(lookup, "EMAIL_SENDER", ""),
		},
		AMQP: AMQPConfig{
			URL:      stringWithDefault(lookup, "AMQP_URL", ""),
			Exchange: stringWithDefault(lookup, "AMQP_EXCHANGE", defaultExchange),
		},
		Redis: RedisConfig{
			Addr: stringWithDefault(lookup, "REDIS_ADDR", ""),
		},
		Orders: OrderConfig{
			NumberPrefix: stringWithDefault(lookup, "ORDER_NUMBER_PREFIX", defaultOrderPrefix),
		},
		Sweep: SweepConfig{
			Interval: duration("SWEEP_INTERVAL", defaultSweepInterval),
			LockTTL:  duration("SWEEP_LOCK_TTL", defaultSweepLockTTL),
		},
	}

	tz := stringWithDefault(lookup, "BUSINESS_TIMEZONE", defaultTimezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		problems = append(problems, fmt.Errorf("BUSINESS_TIMEZONE: %w", err))
		loc = time.UTC
	}
	cfg.BusinessLocation = loc

	if err := cfg.Validate(); err != nil {
		problems = append(problems, err)
	}
	if len(problems) > 0 {
		return Config{}, errors.Join(problems...)
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var problems []error
	if c.Mongo.URI == "" {
		problems = append(problems, errors.New("MONGO_URI is required"))
	}
	if c.JWTSecret == "" {
		problems = append(problems, errors.New("JWT_SECRET is required"))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Errorf("PORT %q is not a number", c.Port))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch c.Email.Provider {
	case EmailProviderNone:
	case EmailProviderSendGrid:
		if c.Email.SendGridAPIKey == "" {
			problems = append(problems, errors.New("SENDGRID_API_KEY is required for the sendgrid provider"))
		}
	case EmailProviderPostmark:
		if c.Email.PostmarkToken == "" {
			problems = append(problems, errors.New("POSTMARK_API_TOKEN is required for the postmark provider"))
		}
	default:
		problems = append(problems, fmt.Errorf("EMAIL_PROVIDER %q is not one of sendgrid, postmark, none", c.Email.Provider))
	}
	if c.Email.Provider != EmailProviderNone && c.Email.Sender == "" {
		problems = append(problems, errors.New("EMAIL_SENDER is required when email is enabled"))
	}
	if c.Sweep.Interval <= 0 {
		problems = append(problems, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	return errors.Join(problems...)
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	v := stringWithDefault(lookup, key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	v := stringWithDefault(lookup, key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
