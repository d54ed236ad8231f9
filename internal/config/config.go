package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main banter configuration
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// AI providers
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Engagement sessions
	Banter BanterConfig `json:"banter" mapstructure:"banter"`

	// Keep-alive HTTP server
	Health HealthConfig `json:"health" mapstructure:"health"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken string `json:"bot_token" mapstructure:"bot_token"`

	// Admins may always run /stopbanter, on top of chat administrators.
	Admins []int64 `json:"admins" mapstructure:"admins"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// BanterConfig holds engagement session configuration
type BanterConfig struct {
	// Inclusive bounds for scheduled messages per session
	MinMessages int `json:"min_messages" mapstructure:"min_messages"`
	MaxMessages int `json:"max_messages" mapstructure:"max_messages"`

	// Timezone used to compute the end-of-day session deadline
	Timezone string `json:"timezone" mapstructure:"timezone"`

	// Persona file (JSON); hot-reloaded when it changes
	PersonaPath string `json:"persona_path" mapstructure:"persona_path"`

	// Cron expression for the correlator sweep
	JanitorSchedule string `json:"janitor_schedule" mapstructure:"janitor_schedule"`

	// Bound on waiting for in-flight deliveries during shutdown
	ShutdownGraceSeconds int `json:"shutdown_grace_seconds" mapstructure:"shutdown_grace_seconds"`
}

// HealthConfig holds keep-alive server configuration
type HealthConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Banter: BanterConfig{
			MinMessages:          2,
			MaxMessages:          5,
			Timezone:             "Local",
			JanitorSchedule:      "5 0 * * *",
			ShutdownGraceSeconds: 10,
		},
		Health: HealthConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}

	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if profile.Provider != "openai" && profile.Provider != "anthropic" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: openai, anthropic)", profile.ID, profile.Provider)
		}
	}

	if c.Banter.MinMessages < 1 {
		return fmt.Errorf("banter min_messages must be at least 1")
	}
	if c.Banter.MaxMessages < c.Banter.MinMessages {
		return fmt.Errorf("banter max_messages must be >= min_messages")
	}

	if c.Banter.Timezone != "" && c.Banter.Timezone != "Local" {
		if _, err := time.LoadLocation(c.Banter.Timezone); err != nil {
			return fmt.Errorf("invalid banter timezone %q: %w", c.Banter.Timezone, err)
		}
	}

	if c.Health.Enabled {
		if c.Health.Port < 1 || c.Health.Port > 65535 {
			return fmt.Errorf("invalid health port %d", c.Health.Port)
		}
	}

	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() *time.Location {
	if c.Banter.Timezone == "" || c.Banter.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Banter.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
