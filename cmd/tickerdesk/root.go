package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/tickerdesk/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tickerdesk",
	Short: "Financial analysis reports from a team of research agents",
	Long: `tickerdesk writes financial analysis reports for one or more stock
tickers or company names.

An orchestrator delegates to three workers, each with one data tool:
- sentiment: recent headlines and their tone
- quant: Beneish M-Score, Altman Z-Score, accruals, composite fraud risk
- health: Sharpe, Sortino, alpha, beta, VaR, drawdown, volatility

A synthesizer then writes one report with a fixed section layout. Missing
data is stated in the report rather than invented.

With no arguments, prompts for tickers and runs a report.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportCmd.RunE(cmd, args)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config plus .tickerdesk.yaml)")
	addReportFlags(rootCmd)

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scoresCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads --config when given, else the layered default config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
