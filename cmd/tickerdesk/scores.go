package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var scoresCmd = &cobra.Command{
	Use:   "scores <ticker>",
	Short: "Show stored fraud and health scores for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ticker := strings.ToUpper(strings.TrimSpace(args[0]))
		scores, err := db.ListScores(context.Background(), ticker)
		if err != nil {
			return err
		}
		if len(scores) == 0 {
			fmt.Printf("No scores stored for %s.\n", ticker)
			return nil
		}

		for _, s := range scores {
			name := s.CompanyName
			if name == "" {
				name = s.Ticker
			}
			fmt.Printf("%-7s %-7s composite %6.2f  %s  (updated %s)\n",
				s.Ticker, s.Kind, s.Composite, name, s.LastUpdated.Local().Format(time.RFC3339))
		}
		return nil
	},
}
