package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server and client configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	StatusAddr        string        `mapstructure:"status_addr" yaml:"status_addr"`
	ServerAddr        string        `mapstructure:"server_addr" yaml:"server_addr"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ReadBufferBytes   int           `mapstructure:"read_buffer_bytes" yaml:"read_buffer_bytes"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	MaxAliasAttempts  int           `mapstructure:"max_alias_attempts" yaml:"max_alias_attempts"`
	WSConnectLimit    int           `mapstructure:"ws_connect_limit" yaml:"ws_connect_limit"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8888",
		ServerAddr:        "127.0.0.1:8888",
		PollInterval:      10 * time.Millisecond,
		ReadBufferBytes:   2000,
		DialTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
	if other.ServerAddr != "" {
		c.ServerAddr = other.ServerAddr
	}
	if other.PollInterval != 0 {
		c.PollInterval = other.PollInterval
	}
	if other.ReadBufferBytes != 0 {
		c.ReadBufferBytes = other.ReadBufferBytes
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.MaxAliasAttempts != 0 {
		c.MaxAliasAttempts = other.MaxAliasAttempts
	}
	if other.WSConnectLimit != 0 {
		c.WSConnectLimit = other.WSConnectLimit
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Validate reports values that cannot be used.
func (c Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.ReadBufferBytes <= 0 {
		errs = append(errs, fmt.Errorf("read_buffer_bytes must be positive, got %d", c.ReadBufferBytes))
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("history_limit must not be negative, got %d", c.HistoryLimit))
	}
	if c.MaxAliasAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_alias_attempts must not be negative, got %d", c.MaxAliasAttempts))
	}
	if c.WSConnectLimit < 0 {
		errs = append(errs, fmt.Errorf("ws_connect_limit must not be negative, got %d", c.WSConnectLimit))
	}
	return errors.Join(errs...)
}
