// Package config loads agent settings from defaults, an optional file and the
// environment, and holds the live session settings the turn loop reads.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petasbytes/vm-agent/internal/provider"
)

// MinThinkingBudget is the smallest budget the API accepts.
const MinThinkingBudget = 1024

// Config is the full agent configuration.
type Config struct {
	APIKey         string        `json:"api_key" mapstructure:"api_key"`
	BaseURL        string        `json:"base_url" mapstructure:"base_url"`
	Model          string        `json:"model" mapstructure:"model"`
	MaxTokens      int64         `json:"max_tokens" mapstructure:"max_tokens"`
	SystemPrompt   string        `json:"system_prompt" mapstructure:"system_prompt"`
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`

	Thinking ThinkingConfig `json:"thinking" mapstructure:"thinking"`
	Display  DisplayConfig  `json:"display" mapstructure:"display"`

	// DataDir holds the persisted conversation and telemetry events.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
	// SandboxRoot is the working directory of the bash tool; empty means cwd.
	SandboxRoot string `json:"sandbox_root" mapstructure:"sandbox_root"`

	Log       LogConfig       `json:"log" mapstructure:"log"`
	Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`
}

type ThinkingConfig struct {
	Enabled      bool  `json:"enabled" mapstructure:"enabled"`
	BudgetTokens int64 `json:"budget_tokens" mapstructure:"budget_tokens"`
}

// DisplayConfig is the computer-use display. Zero width and height mean no display.
type DisplayConfig struct {
	Width  int64 `json:"width" mapstructure:"width"`
	Height int64 `json:"height" mapstructure:"height"`
	Number int64 `json:"number" mapstructure:"number"`
}

// Enabled reports whether a display is configured.
func (d DisplayConfig) Enabled() bool { return d.Width > 0 && d.Height > 0 }

type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
	File   string `json:"file" mapstructure:"file"`
}

type TelemetryConfig struct {
	Observe bool `json:"observe" mapstructure:"observe"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Model:        string(provider.DefaultModel),
		MaxTokens:    provider.DefaultMaxTokens,
		SystemPrompt: provider.DefaultSystemPrompt,
		Thinking: ThinkingConfig{
			BudgetTokens: provider.ThinkingBudget,
		},
		Display: DisplayConfig{
			Number: provider.DefaultDisplayNumber,
		},
		DataDir: ".agent",
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// String returns a JSON representation with the API key masked.
func (c *Config) String() string {
	cp := *c
	if cp.APIKey != "" {
		cp.APIKey = "***"
	}
	data, _ := json.MarshalIndent(cp, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.Display.Width < 0 || c.Display.Height < 0 || c.Display.Number < 0 {
		return fmt.Errorf("display values must not be negative")
	}
	if (c.Display.Width > 0) != (c.Display.Height > 0) {
		return fmt.Errorf("display: width and height must be set together")
	}
	if c.Thinking.Enabled {
		if c.Thinking.BudgetTokens < MinThinkingBudget {
			return fmt.Errorf("thinking.budget_tokens must be at least %d", MinThinkingBudget)
		}
		if c.Thinking.BudgetTokens >= c.MaxTokens {
			return fmt.Errorf("thinking.budget_tokens (%d) must be below max_tokens (%d)", c.Thinking.BudgetTokens, c.MaxTokens)
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
