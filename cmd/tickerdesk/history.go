package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/tickerdesk/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [report-id]",
	Short: "List stored reports, or print one",
	Args:  cobra.MaximumNArgs(1),
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
		ctx := context.Background()

		if len(args) == 1 {
			r, err := db.GetReport(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no report with id %s", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Println(r.Report)
			return nil
		}

		reports, err := db.ListReports(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Println("No reports stored yet.")
			return nil
		}
		for _, r := range reports {
			mode := "synthesized"
			if !r.Synthesized {
				mode = "direct"
			}
			fmt.Printf("%s  %s  %-24s %d delegations, %s\n",
				r.ID, r.CreatedAt.Local().Format(time.DateTime), strings.Join(r.Entities, ","), r.Delegations, mode)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of reports to list")
}
