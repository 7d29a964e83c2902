package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the "backend" key.
const (
	BackendLumina = "lumina"
	BackendOpenAI = "openai"
)

// Config holds the application configuration
type Config struct {
	Backend string       `mapstructure:"backend"`
	Server  ServerConfig `mapstructure:"server"`
	Client  ClientConfig `mapstructure:"client"`
	LLM     LLMConfig    `mapstructure:"llm"`
	Auth    AuthConfig   `mapstructure:"auth"`
	Log     LogConfig    `mapstructure:"log"`
}

// ServerConfig points at the Lumina assistant service.
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// ClientConfig holds the per-operation timeouts applied to remote calls.
type ClientConfig struct {
	AskTimeout     time.Duration `mapstructure:"ask_timeout"`
	HistoryTimeout time.Duration `mapstructure:"history_timeout"`
	DeleteTimeout  time.Duration `mapstructure:"delete_timeout"`
}

// LLMConfig holds the OpenAI-compatible backend configuration
type LLMConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// AuthConfig locates the local credential store.
type AuthConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendLumina)
	v.SetDefault("server.base_url", "http://127.0.0.1:8000")
	v.SetDefault("client.ask_timeout", "30s")
	v.SetDefault("client.history_timeout", "10s")
	v.SetDefault("client.delete_timeout", "10s")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("auth.db_path", "lumina.db")
	v.SetDefault("log.level", "info")
}

// Load reads config.yaml from the working directory, or the file named by
// CONFIG_PATH, and overlays LUMINA_* environment variables. A missing
// config.yaml is not an error; defaults apply.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_PATH"))
}

// LoadFile is Load with an explicit config file. An empty path searches the
// working directory for config.yaml.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("lumina")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLumina:
		if c.Server.BaseURL == "" {
			return errors.New("server.base_url is required for the lumina backend")
		}
	case BackendOpenAI:
		if c.LLM.APIKey == "" {
			return errors.New("llm.api_key is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendLumina, BackendOpenAI)
	}
	if c.Client.AskTimeout <= 0 || c.Client.HistoryTimeout <= 0 || c.Client.DeleteTimeout <= 0 {
		return errors.New("client timeouts must be positive")
	}
	return nil
}
