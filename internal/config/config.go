// Package config loads the runtime configuration from file, environment
// and defaults, in that order of increasing precedence for env vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"riviera/internal/observability"
)

// Config is the full runtime configuration.
type Config struct {
	LLM     LLMConfig                     `mapstructure:"llm"`
	Agent   AgentConfig                   `mapstructure:"agent"`
	Batch   BatchConfig                   `mapstructure:"batch"`
	Storage StorageConfig                 `mapstructure:"storage"`
	Server  ServerConfig                  `mapstructure:"server"`
	Metrics observability.MetricsConfig   `mapstructure:"metrics"`
	Logging LoggingConfig                 `mapstructure:"logging"`
}

type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
}

func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type AgentConfig struct {
	Model         string `mapstructure:"model"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	MaxIterations int    `mapstructure:"max_iterations"`
}

type BatchConfig struct {
	ItemsPerVillage int `mapstructure:"items_per_village"`
}

type StorageConfig struct {
	// DataDir is the root for job documents and tenant tool config.
	DataDir string `mapstructure:"data_dir"`
}

func (c StorageConfig) JobsDir() string    { return filepath.Join(c.DataDir, "jobs") }
func (c StorageConfig) TenantsDir() string { return filepath.Join(c.DataDir, "tenants") }

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	CORS bool   `mapstructure:"cors"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("agent.model", "claude-sonnet-4-20250514")
	v.SetDefault("agent.max_tokens", 8192)
	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("batch.items_per_village", 10)
	v.SetDefault("storage.data_dir", defaultDataDir())
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8642)
	v.SetDefault("server.cors", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("logging.level", "info")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".riviera"
	}
	return filepath.Join(home, ".riviera")
}

// Load reads the configuration. When path is empty the usual locations
// are searched ($HOME and the working directory); a missing file is not
// an error since env vars and defaults can carry a full config.
// RIVIERA_LLM_API_KEY and friends override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RIVIERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("riviera-config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// The API key is commonly supplied the provider's way.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &cfg, nil
}
