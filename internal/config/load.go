package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "MAILROOM"

var validate = validator.New()

// keys lists every configuration key so each one can be bound to its
// environment variable even when no config file mentions it.
var keys = []string{
	"log.level",
	"log.format",
	"scheduler.max_concurrent",
	"scheduler.max_turns",
	"session.path",
	"llm.provider",
	"llm.api_key",
	"llm.model",
	"llm.base_url",
	"llm.cost_per_1k_tokens",
	"llm.max_retries",
	"llm.retry_delay_seconds",
	"source.kind",
	"source.dsn",
	"source.path",
}

// Load configuration from environment variables and optionally a
// mailroom.yaml in the working directory or $HOME/.config/mailroom.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations; a missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mailroom")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mailroom"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scheduler.max_concurrent", 3)
	v.SetDefault("scheduler.max_turns", 5)
	v.SetDefault("session.path", "mailroom-sessions.json")
	v.SetDefault("llm.provider", "echo")
	v.SetDefault("llm.cost_per_1k_tokens", 0.0)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("source.kind", "sqlite")
	v.SetDefault("source.dsn", "mailroom.db")
}
