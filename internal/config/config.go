// Package config handles loading, defaulting, and hot-reloading shelfscan
// configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/shelfscan/internal/catalog"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("server", defaults.Server)
	viper.SetDefault("queue", defaults.Queue)
	viper.SetDefault("redis", defaults.Redis)
	viper.SetDefault("storage", defaults.Storage)
	viper.SetDefault("ocr", defaults.OCR)
	viper.SetDefault("llm", defaults.LLM)
	viper.SetDefault("catalogs", defaults.Catalogs)
	viper.SetDefault("scoring", defaults.Scoring)
	viper.SetDefault("registry", defaults.Registry)
	viper.SetDefault("notifier", defaults.Notifier)
	viper.SetDefault("segment", defaults.Segment)
	viper.SetDefault("validate", defaults.Validate)
	viper.SetDefault("infra", defaults.Infra)

	// Environment variables with SHELFSCAN_ prefix
	viper.SetEnvPrefix("SHELFSCAN")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.shelfscan")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. The catalog registry
// reload hangs off this: toggling a provider in the file takes effect
// without a restart.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// CatalogConfigs returns the catalog provider configs with all ${ENV_VAR}
// references in API keys resolved, ready for catalog.Registry.
func (c *Config) CatalogConfigs() map[string]catalog.ProviderConfig {
	out := make(map[string]catalog.ProviderConfig, len(c.Catalogs))
	for name, cfg := range c.Catalogs {
		cfg.APIKey = ResolveEnvVars(cfg.APIKey)
		out[name] = cfg
	}
	return out
}

// QueueURL returns the broker URL with env references resolved.
func (c *Config) QueueURL() string {
	return ResolveEnvVars(c.Queue.URL)
}

// RedisPassword returns the Redis password with env references resolved.
func (c *Config) RedisPassword() string {
	return ResolveEnvVars(c.Redis.Password)
}

// LLMAPIKey returns the model provider API key with env references resolved.
func (c *Config) LLMAPIKey() string {
	return ResolveEnvVars(c.LLM.APIKey)
}

// StorageSecretKey returns the object store secret with env references
// resolved.
func (c *Config) StorageSecretKey() string {
	return ResolveEnvVars(c.Storage.SecretKey)
}

// OCRAPIKey returns the text detection API key with env references resolved.
func (c *Config) OCRAPIKey() string {
	return ResolveEnvVars(c.OCR.APIKey)
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Shelfscan configuration
# Secrets use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx GOOGLE_BOOKS_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
