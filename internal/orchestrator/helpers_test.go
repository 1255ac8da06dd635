package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/tickerdesk/internal/llm"
	"github.com/ShayCichocki/tickerdesk/internal/llm/llmtest"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// stubTool answers every query from a template, or fails with err. When
// failOn is set only that query fails.
type stubTool struct {
	name   string
	out    string
	err    error
	failOn string

	mu    sync.Mutex
	calls []string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Call(_ context.Context, q string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, q)
	s.mu.Unlock()
	if s.err != nil && (s.failOn == "" || s.failOn == q) {
		return "", s.err
	}
	return strings.ReplaceAll(s.out, "{ticker}", q), nil
}

func (s *stubTool) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubTools struct {
	news, fraud, health *stubTool
}

func newStubTools() *stubTools {
	return &stubTools{
		news: &stubTool{name: "yahoo_news", out: "Headlines for {ticker}:\n- {ticker} beats quarterly estimates\n- Analysts raise {ticker} price target"},
		fraud: &stubTool{name: "compute_fraud_scores", out: "Fraud risk metrics for {ticker}:\n" +
			"- Beneish M-Score: -2.4100\n- Altman Z-Score: 8.1200\n- Composite fraud risk score: 21.5000"},
		health: &stubTool{name: "compute_stock_health", out: "Stock health metrics for {ticker}:\n" +
			"- Sharpe ratio: 1.3200\n- Max drawdown: -0.3400\n- Composite stock health score: 74.0000"},
	}
}

func (s *stubTools) roster() Roster {
	return DefaultRoster(s.news, s.fraud, s.health)
}

// script holds one scripted planner per role so tests can count calls.
type script struct {
	orchestrator *llmtest.Planner
	workers      map[string]*llmtest.Planner
	synth        *llmtest.Planner
	summary      *llmtest.Planner
}

// groundedScript drives every worker through one tool round for each ticker
// followed by an answer that quotes the tool output.
func groundedScript(orchestratorSteps []llmtest.Step, tickers ...string) *script {
	worker := func(tool string) *llmtest.Planner {
		return llmtest.NewPlanner(
			llmtest.CallTool("", tool, tickers...),
			llmtest.QuoteToolResults("Findings:"),
		)
	}
	return &script{
		orchestrator: llmtest.NewPlanner(orchestratorSteps...),
		workers: map[string]*llmtest.Planner{
			"yahoo_news":           worker("yahoo_news"),
			"compute_fraud_scores": worker("compute_fraud_scores"),
			"compute_stock_health": worker("compute_stock_health"),
		},
		synth:   llmtest.NewPlanner(digestReport),
		summary: llmtest.NewPlanner(llmtest.Reply("The report covers the requested tickers.")),
	}
}

func (s *script) planner() llm.Planner {
	sw := llmtest.NewSwitch()
	for tool, p := range s.workers {
		sw.When(llmtest.HasTool(tool), p)
	}
	return sw.
		When(llmtest.SystemContains("You are the orchestrator"), s.orchestrator).
		When(llmtest.SystemContains("FORMAL REPORT"), s.synth).
		When(llmtest.SystemContains("Condense the financial analysis report"), s.summary)
}

// digestReport writes a report whose topic sections copy each worker's
// digest block verbatim. Missing blocks are left out so the section
// enforcer has to fill them.
func digestReport(req llm.Request) (models.Message, error) {
	digest := req.History[len(req.History)-1].Content
	blocks := parseDigest(digest)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s: requested tickers\n\n", ReportTitle)
	sb.WriteString("## Executive Summary\n\nSee the sections below.\n")
	for _, w := range DefaultRoster(nil, nil, nil) {
		body, ok := blocks[w.Name]
		if !ok || strings.Contains(body, "did not run") {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", w.Topic, body)
	}
	sb.WriteString("\n## Conclusion & Outlook\n\nThe outlook follows from the sections above.\n")
	return models.NewAssistantMessage(sb.String()), nil
}

func parseDigest(digest string) map[string]string {
	blocks := make(map[string]string)
	var name string
	var body []string
	flush := func() {
		if name != "" {
			blocks[name] = strings.TrimSpace(strings.Join(body, "\n"))
		}
	}
	for _, line := range strings.Split(digest, "\n") {
		if strings.HasPrefix(line, "=== ") && strings.HasSuffix(line, " worker ===") {
			flush()
			name = strings.TrimSuffix(strings.TrimPrefix(line, "=== "), " worker ===")
			body = nil
			continue
		}
		if name != "" {
			body = append(body, line)
		}
	}
	flush()
	return blocks
}
