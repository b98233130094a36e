// Package config loads the gateway configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Engine  EngineConfig  `mapstructure:"engine"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Lark    LarkConfig    `mapstructure:"lark"`
	History HistoryConfig `mapstructure:"history"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// ServerConfig holds gateway HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigin is the add-in origin permitted by CORS. "*" allows all.
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// BackendConfig holds the upstream workflow backend connection settings.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EngineConfig bounds the decision engine's continuation poll phase.
type EngineConfig struct {
	PollAttempts int           `mapstructure:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// OpenAIConfig holds the classifier settings used by the reference backend.
// An empty API key selects the rule-based classifier.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LarkConfig holds the notification messenger settings. Empty credentials
// disable notifications.
type LarkConfig struct {
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	ChatID     string        `mapstructure:"chat_id"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// HistoryConfig holds the triage history persistence settings.
type HistoryConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	ReportsDir      string        `mapstructure:"reports_dir"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. A missing
// config file is not an error; defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.allowed_origin", "*")

	viper.SetDefault("backend.base_url", "http://127.0.0.1:9091")
	viper.SetDefault("backend.timeout", 30*time.Second)

	viper.SetDefault("engine.poll_attempts", 5)
	viper.SetDefault("engine.poll_interval", time.Second)

	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.temperature", 0.2)
	viper.SetDefault("openai.max_tokens", 1000)
	viper.SetDefault("openai.timeout", 60*time.Second)

	viper.SetDefault("lark.api_timeout", 30*time.Second)

	viper.SetDefault("history.database_path", "data/triage.db")
	viper.SetDefault("history.migrations_dir", "migrations")
	viper.SetDefault("history.reports_dir", "reports")
	viper.SetDefault("history.max_open_conns", 10)
	viper.SetDefault("history.max_idle_conns", 2)
	viper.SetDefault("history.conn_max_lifetime", 5*time.Minute)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds secrets to environment variables.
func bindEnvVars() {
	viper.BindEnv("backend.api_key", "BACKEND_API_KEY")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("lark.app_id", "LARK_APP_ID")
	viper.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	viper.BindEnv("lark.chat_id", "LARK_CHAT_ID")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Engine.PollAttempts <= 0 {
		return fmt.Errorf("engine.poll_attempts must be positive")
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if c.History.DatabasePath == "" {
		return fmt.Errorf("history.database_path is required")
	}

	// Lark credentials come as a pair or not at all.
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}
	if c.Lark.AppID != "" && c.Lark.ChatID == "" {
		return fmt.Errorf("lark.chat_id is required when lark credentials are set")
	}

	return nil
}

// NotificationsEnabled reports whether Lark credentials are configured.
func (c *Config) NotificationsEnabled() bool {
	return c.Lark.AppID != "" && c.Lark.AppSecret != ""
}
