package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// ErrNoRapidAPIKey is returned when the news tool has no RapidAPI key.
var ErrNoRapidAPIKey = errors.New("no RapidAPI key configured")

// GetAPIKey returns the Anthropic API key.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config) (string, error) {
	var fromConfig string
	if cfg != nil {
		fromConfig = cfg.Anthropic.APIKey
	}
	if key, _ := resolveSecret("ANTHROPIC_API_KEY", fromConfig); key != "" {
		return key, nil
	}
	return "", ErrNoAPIKey
}

// GetRapidAPIKey returns the key used by the news tool.
func GetRapidAPIKey(cfg *Config) (string, error) {
	var fromConfig string
	if cfg != nil {
		fromConfig = cfg.Data.RapidAPIKey
	}
	if key, _ := resolveSecret("RAPIDAPI_KEY", fromConfig); key != "" {
		return key, nil
	}
	return "", ErrNoRapidAPIKey
}

// resolveSecret prefers the environment and falls back to a config value
// with ${VAR} references expanded. Unexpanded references count as unset.
func resolveSecret(env, fromConfig string) (string, KeySource) {
	if key := os.Getenv(env); key != "" {
		return key, KeySourceEnv
	}
	if fromConfig != "" {
		key := os.ExpandEnv(fromConfig)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, KeySourceConfig
		}
	}
	return "", KeySourceNone
}

// ValidateAPIKey performs basic validation on an API key.
// It checks format but does not verify the key with Anthropic's API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	// Anthropic API keys start with "sk-ant-"
	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}

	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of a secret for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// Masked returns a copy of cfg with every secret masked, for display.
func Masked(cfg *Config) *Config {
	out := *cfg
	out.Anthropic.APIKey = MaskAPIKey(cfg.Anthropic.APIKey)
	out.Data.RapidAPIKey = MaskAPIKey(cfg.Data.RapidAPIKey)
	out.Notify.ElevenAPIKey = MaskAPIKey(cfg.Notify.ElevenAPIKey)
	out.Notify.TwilioAuthToken = MaskAPIKey(cfg.Notify.TwilioAuthToken)
	out.Notify.TelegramToken = MaskAPIKey(cfg.Notify.TelegramToken)
	return &out
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the Anthropic API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	var fromConfig string
	if cfg != nil {
		fromConfig = cfg.Anthropic.APIKey
	}
	_, src := resolveSecret("ANTHROPIC_API_KEY", fromConfig)
	return src
}
