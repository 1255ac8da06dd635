package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/tickerdesk/internal/agent"
	"github.com/ShayCichocki/tickerdesk/internal/config"
	"github.com/ShayCichocki/tickerdesk/internal/orchestrator"
	"github.com/ShayCichocki/tickerdesk/internal/store"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

var (
	reportPlain             bool
	reportMaxDelegations    int
	reportMaxToolIterations int
)

var reportCmd = &cobra.Command{
	Use:   "report [tickers...]",
	Short: "Generate a financial analysis report",
	Long: `Generate a financial analysis report for one or more tickers or
company names.

Entries may be separated by commas or spaces:
  tickerdesk report NVDA
  tickerdesk report NVDA, AAPL
  tickerdesk report Nvidia Apple Tesla

Without arguments, prompts for the entries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("max-delegations") {
			cfg.Orchestrator.MaxDelegations = reportMaxDelegations
		}
		if cmd.Flags().Changed("max-tool-iterations") {
			cfg.Orchestrator.MaxToolIterations = reportMaxToolIterations
		}

		var stocks []string
		if len(args) == 0 {
			stocks, err = promptStocks(os.Stdin, os.Stdout)
			if err != nil {
				return err
			}
		} else {
			stocks = parseStockInput(strings.Join(args, " "))
		}
		if len(stocks) == 0 {
			fmt.Println("No input provided. Exiting.")
			return nil
		}
		return runReport(cfg, stocks)
	},
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&reportPlain, "plain", false, "Print progress lines instead of the interactive view")
	cmd.Flags().IntVar(&reportMaxDelegations, "max-delegations", orchestrator.DefaultMaxDelegations, "Maximum worker dispatches per report")
	cmd.Flags().IntVar(&reportMaxToolIterations, "max-tool-iterations", agent.DefaultMaxToolIterations, "Maximum tool rounds per worker run")
}

func init() {
	addReportFlags(reportCmd)
}

// parseStockInput splits on commas when present, otherwise on whitespace.
func parseStockInput(raw string) []string {
	var parts []string
	if strings.Contains(raw, ",") {
		parts = strings.Split(raw, ",")
	} else {
		parts = strings.Fields(raw)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// promptStocks asks for entries on in and parses one line.
func promptStocks(in io.Reader, out io.Writer) ([]string, error) {
	fmt.Fprintln(out, "Enter one or more stock tickers / company names.")
	fmt.Fprintln(out, "Separate multiple entries with commas or spaces.")
	fmt.Fprintln(out, "Examples: NVDA  |  NVDA, AAPL  |  Nvidia Apple Tesla")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Stock(s): ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return parseStockInput(line), nil
}

func runReport(cfg *config.Config, stocks []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(cfg)
	if err != nil {
		printStatus("⚠", fmt.Sprintf("Report history disabled: %v", err), color.FgYellow)
	} else {
		defer db.Close()
	}

	engine, err := buildEngine(cfg, db)
	if err != nil {
		return err
	}

	fmt.Printf("\nAnalysing: %s\n\n", strings.Join(stocks, ", "))

	var report models.Report
	if reportPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		report, err = runPlain(ctx, engine, stocks)
	} else {
		report, err = runWithTUI(ctx, engine, stocks)
	}
	if err != nil {
		printStatus("✗", fmt.Sprintf("Report failed: %v", err), color.FgRed)
		return err
	}

	if db != nil {
		saveReport(ctx, db, &report)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(report.Report)
	fmt.Println(strings.Repeat("=", 60))
	printStatus("✓", fmt.Sprintf("Report complete (%d delegations)", report.Delegations), color.FgGreen)
	if report.ID != "" {
		fmt.Printf("  id: %s\n", report.ID)
	}
	return nil
}

func saveReport(ctx context.Context, db *store.DB, report *models.Report) {
	if err := db.SaveReport(ctx, report); err != nil {
		log.Printf("[tickerdesk] save report: %v", err)
	}
}

// runPlain streams events as status lines.
func runPlain(ctx context.Context, engine *orchestrator.Engine, stocks []string) (models.Report, error) {
	emitter := orchestrator.NewEventEmitter(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range emitter.Events() {
			printEvent(ev)
		}
	}()

	report, err := engine.Stream(ctx, stocks, emitter)
	<-done
	return report, err
}

func printEvent(ev orchestrator.OrchestratorEvent) {
	switch ev.Type {
	case orchestrator.EventWorkerStarted:
		printStatus("→", fmt.Sprintf("delegating to %s", ev.Worker), color.FgCyan)
	case orchestrator.EventToolCall:
		printStatus(" ", fmt.Sprintf("%s called %s", ev.Worker, ev.Tool), color.FgHiBlack)
	case orchestrator.EventWorkerCompleted:
		printStatus("✓", fmt.Sprintf("%s finished (delegations %d)", ev.Worker, ev.DelegationCount), color.FgGreen)
	case orchestrator.EventCapReached:
		printStatus("⚠", ev.Message, color.FgYellow)
	case orchestrator.EventSynthesisStarted:
		printStatus("→", "writing report", color.FgCyan)
	case orchestrator.EventTaskFailed:
		printStatus("✗", ev.Error, color.FgRed)
	}
}
