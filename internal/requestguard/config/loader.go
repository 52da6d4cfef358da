// Package config loads configuration with viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration in priority order: environment variables,
// then an optional YAML file, then defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("requestguard")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/requestguard")
	}

	v.SetEnvPrefix("GUARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("server.host", "GUARD_HOST")
	v.BindEnv("server.port", "GUARD_PORT")
	v.BindEnv("redis.enabled", "GUARD_REDIS_ENABLED")
	v.BindEnv("redis.addr", "GUARD_REDIS_ADDR")
	v.BindEnv("redis.password", "GUARD_REDIS_PASSWORD")
	v.BindEnv("logging.level", "GUARD_LOG_LEVEL")
	v.BindEnv("logging.format", "GUARD_LOG_FORMAT")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readtimeout", "5s")
	v.SetDefault("server.writetimeout", "10s")
	v.SetDefault("server.idletimeout", "60s")
	v.SetDefault("server.shutdowntimeout", "5s")

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.scannerenabled", true)
	v.SetDefault("security.maxinspectbytes", 65536)
	v.SetDefault("security.ipratepersecond", 50.0)
	v.SetDefault("security.ipburst", 100)
	v.SetDefault("security.trustforwarded", false)
	v.SetDefault("security.ipidlettl", "15m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !strings.Contains(err.Error(), "no such file or directory") {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
