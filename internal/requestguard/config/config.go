// Package config provides runtime configuration for the guard stack.
package config

import (
	"errors"
	"time"
)

// Config captures runtime settings. The guard policy tables themselves
// are code, not configuration; this covers deployment knobs only.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readtimeout"`
	WriteTimeout    time.Duration `mapstructure:"writetimeout"`
	IdleTimeout     time.Duration `mapstructure:"idletimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdowntimeout"`
}

// GRPCConfig configures the optional gRPC enforcement surface.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// RedisConfig configures the shared counter store. When disabled the
// in-memory store is used.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig configures the scanner and the per-IP limiter.
type SecurityConfig struct {
	ScannerEnabled  bool          `mapstructure:"scannerenabled"`
	MaxInspectBytes int64         `mapstructure:"maxinspectbytes"`
	IPRatePerSecond float64       `mapstructure:"ipratepersecond"`
	IPBurst         int           `mapstructure:"ipburst"`
	TrustForwarded  bool          `mapstructure:"trustforwarded"`
	IPIdleTTL       time.Duration `mapstructure:"ipidlettl"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server port must be between 1 and 65535")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis address is required when redis is enabled")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return errors.New("grpc address is required when grpc is enabled")
	}
	if c.Security.IPRatePerSecond <= 0 {
		return errors.New("ip rate must be positive")
	}
	if c.Security.IPBurst <= 0 {
		return errors.New("ip burst must be positive")
	}
	return nil
}
