package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (AGT_DISPLAY_WIDTH, ...).
const EnvPrefix = "AGT"

// ErrNoConfigFile is returned by Watch when no config file was loaded.
var ErrNoConfigFile = errors.New("config: no config file to watch")

// Loader handles configuration loading
type Loader struct {
	configPath string

	mu      sync.Mutex
	v       *viper.Viper
	hasFile bool
}

// NewLoader creates a new config loader. An empty path loads defaults and
// environment only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads defaults, the config file if present, then the environment.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", "ANTHROPIC_API_KEY", EnvPrefix+"_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api_key: %w", err)
	}

	hasFile := false
	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			v.SetConfigFile(l.configPath)
			if filepath.Ext(l.configPath) == "" {
				v.SetConfigType("json")
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			hasFile = true
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.v = v
	l.hasFile = hasFile
	l.mu.Unlock()
	return cfg, nil
}

// Watch calls fn with the re-read config each time the file changes. Invalid
// configs are logged and skipped. Load must have been called first.
func (l *Loader) Watch(fn func(*Config)) error {
	l.mu.Lock()
	v, hasFile := l.v, l.hasFile
	l.mu.Unlock()
	if v == nil || !hasFile {
		return ErrNoConfigFile
	}

	v.OnConfigChange(func(in fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Warn().Err(err).Str("file", in.Name).Msg("config reload failed")
			return
		}
		if err := cfg.Validate(); err != nil {
			log.Warn().Err(err).Str("file", in.Name).Msg("ignoring invalid config change")
			return
		}
		log.Debug().Str("file", in.Name).Str("op", in.Op.String()).Msg("config reloaded")
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	return l.configPath
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("model", d.Model)
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("system_prompt", d.SystemPrompt)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("thinking.enabled", d.Thinking.Enabled)
	v.SetDefault("thinking.budget_tokens", d.Thinking.BudgetTokens)
	v.SetDefault("display.width", d.Display.Width)
	v.SetDefault("display.height", d.Display.Height)
	v.SetDefault("display.number", d.Display.Number)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("sandbox_root", d.SandboxRoot)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("telemetry.observe", d.Telemetry.Observe)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
