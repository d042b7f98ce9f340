package identity

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "IDENTITY_"

// Config is read once at process start and passed down by value.
type Config struct {
	Token      TokenConfig      `koanf:"token" envPrefix:"TOKEN_"`
	Lockout    LockoutConfig    `koanf:"lockout" envPrefix:"LOCKOUT_"`
	Password   PasswordConfig   `koanf:"password" envPrefix:"PASSWORD_"`
	UserTokens UserTokensConfig `koanf:"user_tokens" envPrefix:"USER_TOKENS_"`
	Database   DatabaseConfig   `koanf:"database" envPrefix:"DATABASE_"`
	Redis      RedisConfig      `koanf:"redis" envPrefix:"REDIS_"`
	AMQP       AMQPConfig       `koanf:"amqp" envPrefix:"AMQP_"`
	HTTP       HTTPConfig       `koanf:"http" envPrefix:"HTTP_"`
	Log        LogConfig        `koanf:"log" envPrefix:"LOG_"`
}

// TokenConfig configures the bearer token codec. Keys are base64 or
// base64url text (raw Ed25519, DER or PEM).
type TokenConfig struct {
	PrivateKey     string        `koanf:"private_key" env:"PRIVATE_KEY"`
	PublicKey      string        `koanf:"public_key" env:"PUBLIC_KEY"`
	Issuer         string        `koanf:"issuer" env:"ISSUER"`
	Audience       string        `koanf:"audience" env:"AUDIENCE"`
	TTL            time.Duration `koanf:"ttl" env:"TTL"`
	ClockTolerance time.Duration `koanf:"clock_tolerance" env:"CLOCK_TOLERANCE"`
}

// LockoutConfig configures brute force protection.
type LockoutConfig struct {
	EnabledByDefault bool          `koanf:"enabled_by_default" env:"ENABLED_BY_DEFAULT"`
	Threshold        int           `koanf:"threshold" env:"THRESHOLD"`
	Window           time.Duration `koanf:"window" env:"WINDOW"`
}

// PasswordConfig configures credential hashing.
type PasswordConfig struct {
	Cost int `koanf:"cost" env:"COST"`
}

// UserTokensConfig configures confirmation, reset and two factor codes.
type UserTokensConfig struct {
	TTL           time.Duration `koanf:"ttl" env:"TTL"`
	TwoFactorTTL  time.Duration `koanf:"two_factor_ttl" env:"TWO_FACTOR_TTL"`
	NumericDigits int           `koanf:"numeric_digits" env:"NUMERIC_DIGITS"`
}

// DatabaseConfig selects the bun dialect and DSN.
type DatabaseConfig struct {
	Driver string `koanf:"driver" env:"DRIVER"`
	DSN    string `koanf:"dsn" env:"DSN"`
	Debug  bool   `koanf:"debug" env:"DEBUG"`
}

// RedisConfig enables the redis token value store when Addr is set.
type RedisConfig struct {
	Addr     string `koanf:"addr" env:"ADDR"`
	Password string `koanf:"password" env:"PASSWORD"`
	DB       int    `koanf:"db" env:"DB"`
	Prefix   string `koanf:"prefix" env:"PREFIX"`
}

// AMQPConfig enables the AMQP event sink when URL is set.
type AMQPConfig struct {
	URL      string `koanf:"url" env:"URL"`
	Exchange string `koanf:"exchange" env:"EXCHANGE"`
}

// HTTPConfig configures the demo server and default gate token source.
type HTTPConfig struct {
	Addr        string `koanf:"addr" env:"ADDR"`
	TokenSource string `koanf:"token_source" env:"TOKEN_SOURCE"`
	TokenKey    string `koanf:"token_key" env:"TOKEN_KEY"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `koanf:"level" env:"LEVEL"`
	Dev   bool   `koanf:"dev" env:"DEV"`
}

// DefaultConfig returns the built in defaults.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:         "go-identity",
			TTL:            time.Hour,
			ClockTolerance: 30 * time.Second,
		},
		Lockout: LockoutConfig{
			EnabledByDefault: true,
			Threshold:        DefaultLockoutThreshold,
			Window:           DefaultLockoutWindow,
		},
		Password: PasswordConfig{
			Cost: DefaultPasswordCost,
		},
		UserTokens: UserTokensConfig{
			TTL:           time.Hour,
			TwoFactorTTL:  5 * time.Minute,
			NumericDigits: 6,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:identity.db?cache=shared",
		},
		Redis: RedisConfig{
			Prefix: "ut:",
		},
		AMQP: AMQPConfig{
			Exchange: "identity.events",
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			TokenSource: "header",
			TokenKey:    "Authorization",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig resolves defaults, then the YAML file at path (optional), then
// IDENTITY_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "load config file")
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "decode config file")
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail at first use.
func (c Config) Validate() error {
	if c.Lockout.Threshold <= 0 {
		return oops.Code("CONFIG_INVALID").With("threshold", c.Lockout.Threshold).Errorf("lockout threshold must be positive")
	}
	if c.Lockout.Window <= 0 {
		return oops.Code("CONFIG_INVALID").With("window", c.Lockout.Window).Errorf("lockout window must be positive")
	}
	if c.Token.TTL < 0 {
		return oops.Code("CONFIG_INVALID").With("ttl", c.Token.TTL).Errorf("token ttl must not be negative")
	}
	if c.UserTokens.NumericDigits <= 0 || c.UserTokens.NumericDigits > 18 {
		return oops.Code("CONFIG_INVALID").With("digits", c.UserTokens.NumericDigits).Errorf("numeric digits must be between 1 and 18")
	}
	return nil
}
