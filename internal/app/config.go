package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Notifier drivers.
const (
	NotifierLog  = "log"
	NotifierAMQP = "amqp"
)

// Config holds the complete application configuration, loadable from
// environment variables (HDC_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (HDC_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (HDC_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Store        StoreConfig
	Recovery     RecoveryConfig
	Notifier     NotifierConfig
	Redis        RedisConfig
	Bcrypt       BcryptConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StoreConfig selects and tunes the persistence backend.
type StoreConfig struct {
	Driver       string        `default:"postgres" usage:"Store driver: postgres or memory"`
	QueryTimeout time.Duration `default:"5s" usage:"Deadline of a single store transaction"`
	Migrate      bool          `default:"true" usage:"Apply the embedded schema on start"`
}

// RecoveryConfig controls password recovery messages.
type RecoveryConfig struct {
	TokenLifetime time.Duration `default:"30m" usage:"Validity of a recovery token"`
	URI           string        `default:"http://localhost:3000/recover-password" usage:"Front-end address the token is appended to"`
	Subject       string        `default:"Password recovery" usage:"Recovery message subject"`
}

// NotifierConfig selects the outbound message transport.
type NotifierConfig struct {
	Driver  string `default:"log" usage:"Notifier driver: log or amqp"`
	AMQPURL string `usage:"RabbitMQ URL for the amqp driver" flag:"amqp-url"`
	Queue   string `default:"hdcontrol.notifications" usage:"Queue recovery messages are published to"`
}

// RedisConfig enables the product read cache when Addr is set.
type RedisConfig struct {
	Addr     string        `usage:"Redis address; empty disables the product cache"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	TTL      time.Duration `default:"5m" usage:"Product cache entry lifetime"`
}

// BcryptConfig controls password hashing.
type BcryptConfig struct {
	Cost int `default:"10" usage:"bcrypt cost"`
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

// LoadConfig loads the server configuration from flags, environment
// variables and YAML files.
func LoadConfig() (*Config, error) {
	return load(false)
}

// LoadToolConfig loads the configuration without parsing flags, for commands
// that own their command line.
func LoadToolConfig() (*Config, error) {
	return load(true)
}

func load(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "HDC",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/hdcontrol/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set HDC_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Notifier.Driver {
	case NotifierAMQP:
		if c.Notifier.AMQPURL == "" {
			return errors.New("amqp notifier needs HDC_NOTIFIER_AMQP_URL")
		}
	case NotifierLog:
	default:
		return errors.Errorf("unknown notifier driver %q", c.Notifier.Driver)
	}

	if c.Recovery.TokenLifetime < 0 {
		return errors.New("recovery token lifetime must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's HDC_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
