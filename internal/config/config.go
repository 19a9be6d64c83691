package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	// DatabaseURL empty means the in-memory journal: state is lost on
	// restart. Fine for development, not for anything else.
	DatabaseURL string `env:"DATABASE_URL"`

	Port       string `env:"PORT" envDefault:"8080"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`

	QuoteBaseURL  string        `env:"QUOTE_BASE_URL,required"`
	QuoteTimeout  time.Duration `env:"QUOTE_TIMEOUT" envDefault:"5s"`
	QuoteCacheTTL time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"15s"`

	// KafkaBrokers empty disables the executed-trade feed.
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"paper.trades"`

	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"NPR"`
}

func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}
