// Package config handles configuration loading and management for tickerdesk.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for tickerdesk.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Data         DataConfig         `mapstructure:"data"`
	Store        StoreConfig        `mapstructure:"store"`
	Server       ServerConfig       `mapstructure:"server"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
}

// AnthropicConfig holds language model settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
}

// OrchestratorConfig holds the delegation caps.
type OrchestratorConfig struct {
	MaxDelegations       int `mapstructure:"max_delegations"`
	MaxToolIterations    int `mapstructure:"max_tool_iterations"`
	MinFinalAnswerLength int `mapstructure:"min_final_answer_length"`
}

// DataConfig holds the external data sources the tools call.
type DataConfig struct {
	RapidAPIKey    string        `mapstructure:"rapidapi_key"`
	NewsBaseURL    string        `mapstructure:"news_base_url"`
	MetricsBaseURL string        `mapstructure:"metrics_base_url"`
	CacheSize      int           `mapstructure:"cache_size"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// StoreConfig holds the score and report database settings.
type StoreConfig struct {
	// Path is the sqlite file. Empty means the XDG data dir.
	Path      string        `mapstructure:"path"`
	Freshness time.Duration `mapstructure:"freshness"`
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Addr  string `mapstructure:"addr"`
	CORS  bool   `mapstructure:"cors"`
	Debug bool   `mapstructure:"debug"`
}

// NotifyConfig holds risk alert settings.
type NotifyConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	RiskThreshold    float64 `mapstructure:"risk_threshold"`
	Phone            string  `mapstructure:"phone"`
	ElevenAPIKey     string  `mapstructure:"eleven_api_key"`
	ElevenVoiceID    string  `mapstructure:"eleven_voice_id"`
	TwilioAccountSID string  `mapstructure:"twilio_account_sid"`
	TwilioAuthToken  string  `mapstructure:"twilio_auth_token"`
	TwilioFrom       string  `mapstructure:"twilio_from"`
	TelegramToken    string  `mapstructure:"telegram_token"`
	TelegramChatID   int64   `mapstructure:"telegram_chat_id"`
	// PublicBaseURL is where call providers can fetch generated audio.
	// Empty means calls read the message with text-to-speech instead.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// ScheduleConfig holds the optional watchlist schedule.
type ScheduleConfig struct {
	Cron    string   `mapstructure:"cron"`
	Tickers []string `mapstructure:"tickers"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"anthropic.api_key":         "ANTHROPIC_API_KEY",
	"data.rapidapi_key":         "RAPIDAPI_KEY",
	"data.metrics_base_url":     "TICKERDESK_METRICS_URL",
	"notify.eleven_api_key":     "ELEVEN_API_KEY",
	"notify.eleven_voice_id":    "ELEVEN_VOICE_ID",
	"notify.twilio_account_sid": "TWILIO_ACCOUNT_SID",
	"notify.twilio_auth_token":  "TWILIO_AUTH_TOKEN",
	"notify.twilio_from":        "TWILIO_PHONE_NUMBER",
	"notify.telegram_token":     "TELEGRAM_BOT_TOKEN",
	"notify.public_base_url":    "BASE_URL",
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, RAPIDAPI_KEY, ...)
// 2. Project config (.tickerdesk.yaml in current directory or parent)
// 3. User config (~/.config/tickerdesk/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// Watch reloads the config at path whenever the file changes and passes the
// result to fn. Reload errors are passed to onErr and the previous config
// stays in effect.
func Watch(path string, fn func(*Config), onErr func(error)) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config from %s: %w", path, err)
	}
	bindEnv(v)

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshal(v)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}

func bindEnv(v *viper.Viper) {
	for key, env := range envBindings {
		v.BindEnv(key, env)
	}
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in secrets
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Data.RapidAPIKey = expandEnv(cfg.Data.RapidAPIKey)
	cfg.Notify.ElevenAPIKey = expandEnv(cfg.Notify.ElevenAPIKey)
	cfg.Notify.TwilioAuthToken = expandEnv(cfg.Notify.TwilioAuthToken)
	cfg.Notify.TelegramToken = expandEnv(cfg.Notify.TelegramToken)
	cfg.Schedule.Tickers = normalizeTickers(cfg.Schedule.Tickers)

	return cfg, nil
}

// Save writes the configuration to the user config file. Secrets that came
// from the environment are written as well, so callers should mask first if
// that is not wanted.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(filepath.Join(userConfigDir, "config.yaml"), cfg)
}

// SaveTo writes the configuration to path.
func SaveTo(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("orchestrator.max_delegations", cfg.Orchestrator.MaxDelegations)
	v.Set("orchestrator.max_tool_iterations", cfg.Orchestrator.MaxToolIterations)
	v.Set("orchestrator.min_final_answer_length", cfg.Orchestrator.MinFinalAnswerLength)
	v.Set("data.rapidapi_key", cfg.Data.RapidAPIKey)
	v.Set("data.news_base_url", cfg.Data.NewsBaseURL)
	v.Set("data.metrics_base_url", cfg.Data.MetricsBaseURL)
	v.Set("data.cache_size", cfg.Data.CacheSize)
	v.Set("data.cache_ttl", cfg.Data.CacheTTL.String())
	v.Set("store.path", cfg.Store.Path)
	v.Set("store.freshness", cfg.Store.Freshness.String())
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.cors", cfg.Server.CORS)
	v.Set("server.debug", cfg.Server.Debug)
	v.Set("notify.enabled", cfg.Notify.Enabled)
	v.Set("notify.risk_threshold", cfg.Notify.RiskThreshold)
	v.Set("notify.phone", cfg.Notify.Phone)
	v.Set("notify.eleven_api_key", cfg.Notify.ElevenAPIKey)
	v.Set("notify.eleven_voice_id", cfg.Notify.ElevenVoiceID)
	v.Set("notify.twilio_account_sid", cfg.Notify.TwilioAccountSID)
	v.Set("notify.twilio_auth_token", cfg.Notify.TwilioAuthToken)
	v.Set("notify.twilio_from", cfg.Notify.TwilioFrom)
	v.Set("notify.telegram_token", cfg.Notify.TelegramToken)
	v.Set("notify.telegram_chat_id", cfg.Notify.TelegramChatID)
	v.Set("notify.public_base_url", cfg.Notify.PublicBaseURL)
	v.Set("schedule.cron", cfg.Schedule.Cron)
	v.Set("schedule.tickers", cfg.Schedule.Tickers)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.max_tokens", 4096)

	v.SetDefault("orchestrator.max_delegations", 10)
	v.SetDefault("orchestrator.max_tool_iterations", 3)
	v.SetDefault("orchestrator.min_final_answer_length", 200)

	v.SetDefault("data.news_base_url", "https://yahoo-finance15.p.rapidapi.com")
	v.SetDefault("data.metrics_base_url", "http://localhost:8000")
	v.SetDefault("data.cache_size", 256)
	v.SetDefault("data.cache_ttl", "15m")

	v.SetDefault("store.path", "")
	v.SetDefault("store.freshness", "24h")

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.cors", true)
	v.SetDefault("server.debug", false)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.risk_threshold", 70.0)

	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.tickers", []string{})
}

// getUserConfigDir returns the XDG config directory for tickerdesk.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tickerdesk")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "tickerdesk")
	}
	return filepath.Join(home, ".config", "tickerdesk")
}

// findProjectConfig searches for .tickerdesk.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".tickerdesk.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

func normalizeTickers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 4096,
		},
		Orchestrator: OrchestratorConfig{
			MaxDelegations:       10,
			MaxToolIterations:    3,
			MinFinalAnswerLength: 200,
		},
		Data: DataConfig{
			NewsBaseURL:    "https://yahoo-finance15.p.rapidapi.com",
			MetricsBaseURL: "http://localhost:8000",
			CacheSize:      256,
			CacheTTL:       15 * time.Minute,
		},
		Store: StoreConfig{
			Freshness: 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":5000",
			CORS: true,
		},
		Notify: NotifyConfig{
			RiskThreshold: 70,
		},
		Schedule: ScheduleConfig{
			Tickers: []string{},
		},
	}
}
