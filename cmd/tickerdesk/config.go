package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/tickerdesk/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Show tickerdesk configuration.

Configuration is stored at ~/.config/tickerdesk/config.yaml
Project-specific overrides can be placed in .tickerdesk.yaml
Secrets may also come from ANTHROPIC_API_KEY, RAPIDAPI_KEY and friends.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		out, err := yaml.Marshal(configView(config.Masked(cfg)))
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		fmt.Printf("\n# anthropic api key source: %s\n", config.GetAPIKeySource(cfg))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user:    %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Printf("project: %s\n", project)
		if configPath != "" {
			fmt.Printf("flag:    %s\n", configPath)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

// configView renders a config with the same keys the config file uses.
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"anthropic": map[string]any{
			"api_key":     cfg.Anthropic.APIKey,
			"model":       cfg.Anthropic.Model,
			"use_bedrock": cfg.Anthropic.UseBedrock,
			"aws_region":  cfg.Anthropic.AWSRegion,
			"aws_profile": cfg.Anthropic.AWSProfile,
			"max_tokens":  cfg.Anthropic.MaxTokens,
		},
		"orchestrator": map[string]any{
			"max_delegations":         cfg.Orchestrator.MaxDelegations,
			"max_tool_iterations":     cfg.Orchestrator.MaxToolIterations,
			"min_final_answer_length": cfg.Orchestrator.MinFinalAnswerLength,
		},
		"data": map[string]any{
			"rapidapi_key":     cfg.Data.RapidAPIKey,
			"news_base_url":    cfg.Data.NewsBaseURL,
			"metrics_base_url": cfg.Data.MetricsBaseURL,
			"cache_size":       cfg.Data.CacheSize,
			"cache_ttl":        cfg.Data.CacheTTL.String(),
		},
		"store": map[string]any{
			"path":      cfg.Store.Path,
			"freshness": cfg.Store.Freshness.String(),
		},
		"server": map[string]any{
			"addr":  cfg.Server.Addr,
			"cors":  cfg.Server.CORS,
			"debug": cfg.Server.Debug,
		},
		"notify": map[string]any{
			"enabled":            cfg.Notify.Enabled,
			"risk_threshold":     cfg.Notify.RiskThreshold,
			"phone":              cfg.Notify.Phone,
			"eleven_api_key":     cfg.Notify.ElevenAPIKey,
			"eleven_voice_id":    cfg.Notify.ElevenVoiceID,
			"twilio_account_sid": cfg.Notify.TwilioAccountSID,
			"twilio_auth_token":  cfg.Notify.TwilioAuthToken,
			"twilio_from":        cfg.Notify.TwilioFrom,
			"telegram_token":     cfg.Notify.TelegramToken,
			"telegram_chat_id":   cfg.Notify.TelegramChatID,
			"public_base_url":    cfg.Notify.PublicBaseURL,
		},
		"schedule": map[string]any{
			"cron":    cfg.Schedule.Cron,
			"tickers": cfg.Schedule.Tickers,
		},
	}
}
