// Package config loads service configuration from a YAML file, environment
// variables (PERP_ prefix), and an optional .env file, in that order of
// increasing precedence for the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port           int     `mapstructure:"port"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	CacheTTL int    `mapstructure:"cache_ttl_seconds"`
}

type EngineConfig struct {
	MaxPerMarketExposure float64 `mapstructure:"max_per_market_exposure"`
	MaxTotalExposure     float64 `mapstructure:"max_total_exposure"`
	SlotMillis           int     `mapstructure:"slot_millis"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. An empty configPath falls back to the standard
// search locations; a missing config file is fine, defaults and environment
// apply.
func Load(configPath string) (*Config, error) {
	// Best effort: a .env file feeds the environment before viper reads it.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/perp-engine")
	}

	v.SetEnvPrefix("PERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 50.0)
	v.SetDefault("server.rate_limit_burst", 100)

	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl_seconds", 30)

	v.SetDefault("engine.max_per_market_exposure", 0.0) // 0 disables
	v.SetDefault("engine.max_total_exposure", 0.0)
	v.SetDefault("engine.slot_millis", 400)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
