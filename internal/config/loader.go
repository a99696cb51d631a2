package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "RELAYCHAT"
	envConfigDefaultPath = "RELAYCHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "relaychat.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
// A missing file is created with the defaults so operators have something to edit.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	defaults := settings(cfg)

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := readOrCreate(v, configPath, defaults, logger); err != nil {
		return cfg, configPath, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, fmt.Errorf("validate config: %w", err)
	}

	return cfg, configPath, nil
}

func readOrCreate(v *viper.Viper, path string, defaults map[string]any, logger *zerolog.Logger) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	if writeErr := writeDefaultConfig(path, defaults); writeErr != nil {
		if logger != nil {
			logger.Warn().Err(writeErr).Str("path", path).Msg("failed to write default config")
		}
		return nil
	}
	if logger != nil {
		logger.Info().Str("path", path).Msg("created default config")
	}

	if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
		logger.Warn().Err(readErr).Str("path", path).Msg("failed to read config after writing default")
	}
	return nil
}

// settings flattens cfg into viper keys. Durations are kept as text so the
// generated file reads "10ms" rather than nanoseconds.
func settings(cfg Config) map[string]any {
	return map[string]any{
		"addr":                cfg.Addr,
		"status_addr":         cfg.StatusAddr,
		"server_addr":         cfg.ServerAddr,
		"poll_interval":       duration(cfg.PollInterval),
		"read_buffer_bytes":   cfg.ReadBufferBytes,
		"dial_timeout":        duration(cfg.DialTimeout),
		"history_limit":       cfg.HistoryLimit,
		"max_alias_attempts":  cfg.MaxAliasAttempts,
		"ws_connect_limit":    cfg.WSConnectLimit,
		"read_header_timeout": duration(cfg.ReadHeaderTimeout),
		"shutdown_timeout":    duration(cfg.ShutdownTimeout),
		"log_level":           cfg.LogLevel,
	}
}

func duration(d time.Duration) string { return d.String() }

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, values map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
