// Package config holds the typed environment configuration. Values are read
// once at startup; godotenv autoload in main fills the environment first.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	// RedisAddr empty disables the event journal.
	RedisAddr  string `env:"REDIS_ADDR"`
	RedisDB    int    `env:"REDIS_DB" envDefault:"0"`
	EventQueue string `env:"EVENT_QUEUE_NAME" envDefault:"arena_events"`

	Hub HubConfig `envPrefix:"HUB_"`
}

// HubConfig bounds the broadcast hub.
type HubConfig struct {
	MaxConnections           int           `env:"MAX_CONNECTIONS" envDefault:"500"`
	MaxChannelsPerConnection int           `env:"MAX_CHANNELS_PER_CONNECTION" envDefault:"32"`
	EvictionBatch            int           `env:"EVICTION_BATCH" envDefault:"5"`
	EvictionGrace            time.Duration `env:"EVICTION_GRACE" envDefault:"5s"`
	HeartbeatInterval        time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	CleanupInterval          time.Duration `env:"CLEANUP_INTERVAL" envDefault:"60s"`
	IdleTimeout              time.Duration `env:"IDLE_TIMEOUT" envDefault:"5m"`
	SendBuffer               int           `env:"SEND_BUFFER" envDefault:"16"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
