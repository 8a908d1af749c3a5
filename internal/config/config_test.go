package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "claude-3-7-sonnet-20250219", cfg.Model)
	assert.Equal(t, int64(2048), cfg.MaxTokens)
	assert.Equal(t, int64(1024), cfg.Thinking.BudgetTokens)
	assert.Equal(t, int64(1), cfg.Display.Number)
	assert.False(t, cfg.Display.Enabled())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing model", func(c *Config) { c.Model = "" }, "model is required"},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, "max_tokens"},
		{"half display", func(c *Config) { c.Display.Width = 1024 }, "set together"},
		{"negative display", func(c *Config) { c.Display.Number = -1 }, "negative"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -1 }, "request_timeout"},
		{"small budget", func(c *Config) {
			c.Thinking.Enabled = true
			c.Thinking.BudgetTokens = 10
		}, "at least"},
		{"budget over max", func(c *Config) {
			c.Thinking.Enabled = true
			c.MaxTokens = 1024
		}, "below max_tokens"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ThinkingDisabledIgnoresBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thinking.BudgetTokens = 1
	assert.NoError(t, cfg.Validate())
}

func TestConfigString_MasksKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "sk-secret"
	s := cfg.String()
	assert.False(t, strings.Contains(s, "sk-secret"))
	assert.Contains(t, s, `"api_key": "***"`)
}
