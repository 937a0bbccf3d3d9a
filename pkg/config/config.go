// Package config loads the application configuration from config.yaml and
// AICHAT_* environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Relay  RelayConfig  `mapstructure:"relay"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// Addr joins host and port into a listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// LLMConfig selects the completion/image provider.
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// RelayConfig tunes the websocket relay.
type RelayConfig struct {
	// IdleWindowSeconds is how long a conversation may sit untouched before
	// the disconnect-time sweep removes it.
	IdleWindowSeconds int `mapstructure:"idle_window_seconds"`
	// EvictIntervalSeconds enables a periodic background sweep when positive,
	// so long-lived connections cannot pin idle history forever.
	EvictIntervalSeconds int `mapstructure:"evict_interval_seconds"`
}

// LogConfig holds log settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config.yaml from the given directory (current directory when
// empty), applying defaults and AICHAT_* environment overrides.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3003")
	// Register keys so env-only overrides survive Unmarshal.
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("relay.idle_window_seconds", 3600)
	v.SetDefault("relay.evict_interval_seconds", 0)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("AICHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; defaults plus env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
