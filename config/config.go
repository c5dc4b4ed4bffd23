package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
)

const envPrefix = "IAP"

type Config struct {
	Log   LogConfig
	Store StoreConfig

	StatusCacheTTL time.Duration `envconfig:"STATUS_CACHE_TTL" default:"0s"`
}

type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// StoreConfig controls how the in-memory storefront formats display prices.
type StoreConfig struct {
	CurrencySymbol string `envconfig:"CURRENCY_SYMBOL" default:"$"`
	Locale         string `envconfig:"LOCALE" default:"en"`
}

// Load reads configuration from IAP_ prefixed environment variables. Values
// from a .env file in the working directory are loaded first, if one exists,
// without overriding variables that are already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "error processing environment")
	}

	if cfg.StatusCacheTTL < 0 {
		return nil, errors.Errorf("invalid status cache ttl: %s", cfg.StatusCacheTTL)
	}
	if _, err := cfg.Store.LanguageTag(); err != nil {
		return nil, err
	}
	if _, err := cfg.Log.ZapLevel(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c StoreConfig) LanguageTag() (language.Tag, error) {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Und, errors.Wrapf(err, "invalid locale %q", c.Locale)
	}
	return tag, nil
}

func (c LogConfig) ZapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return zapcore.InfoLevel, errors.Wrapf(err, "invalid log level %q", c.Level)
	}
	return level, nil
}

// NewLogger builds a zap logger from c.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := c.ZapLevel()
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
