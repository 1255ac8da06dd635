package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/tickerdesk/internal/tools"
)

const (
	// DelegatePrefix starts a dispatch token line: DELEGATE:<worker>.
	DelegatePrefix = "DELEGATE:"
	// AllDoneSentinel is the directive line signalling synthesis is ready.
	AllDoneSentinel = "ALL_WORKERS_DONE"

	// ReportTitle heads every report.
	ReportTitle = "Financial Analysis Report"
	// ExecutiveSummaryHeading is the first fixed report section.
	ExecutiveSummaryHeading = "Executive Summary"
	// ConclusionHeading is the last fixed report section.
	ConclusionHeading = "Conclusion & Outlook"
)

// WorkerSpec is one row of the roster table. The orchestrator prompt, the
// dispatch token set, the priority order and the report section template
// are all derived from the roster so they cannot drift apart.
type WorkerSpec struct {
	// Name is the worker's dispatch token suffix and origin tag.
	Name string
	// Topic is the report section heading for this worker's data.
	Topic string
	// Description tells the orchestrator model what the worker does.
	Description string
	// Prompt is the worker's system instruction.
	Prompt string
	// Tool is the single capability the worker calls.
	Tool tools.Tool
}

// Roster is the ordered worker table. Order is dispatch priority.
type Roster []WorkerSpec

var workerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks names are unique tokens and every row is complete.
func (r Roster) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("roster is empty")
	}
	seen := make(map[string]bool, len(r))
	topics := make(map[string]bool, len(r))
	for i, w := range r {
		if !workerNamePattern.MatchString(w.Name) {
			return fmt.Errorf("roster[%d]: invalid worker name %q", i, w.Name)
		}
		if seen[w.Name] {
			return fmt.Errorf("roster[%d]: duplicate worker name %q", i, w.Name)
		}
		seen[w.Name] = true

		topic := normalizeHeading(w.Topic)
		if topic == "" {
			return fmt.Errorf("worker %s: topic is required", w.Name)
		}
		if topics[topic] || topic == normalizeHeading(ExecutiveSummaryHeading) || topic == normalizeHeading(ConclusionHeading) {
			return fmt.Errorf("worker %s: topic %q collides with another section", w.Name, w.Topic)
		}
		topics[topic] = true

		if strings.TrimSpace(w.Prompt) == "" {
			return fmt.Errorf("worker %s: prompt is required", w.Name)
		}
		if w.Tool == nil {
			return fmt.Errorf("worker %s: tool is required", w.Name)
		}
	}
	return nil
}

// Names returns worker names in priority order.
func (r Roster) Names() []string {
	names := make([]string, len(r))
	for i, w := range r {
		names[i] = w.Name
	}
	return names
}

// Lookup returns the worker with the given name.
func (r Roster) Lookup(name string) (WorkerSpec, bool) {
	for _, w := range r {
		if w.Name == name {
			return w, true
		}
	}
	return WorkerSpec{}, false
}

// Topics returns the topic headings in priority order.
func (r Roster) Topics() []string {
	topics := make([]string, len(r))
	for i, w := range r {
		topics[i] = w.Topic
	}
	return topics
}

// SectionHeadings returns every fixed report section in order.
func (r Roster) SectionHeadings() []string {
	headings := []string{ExecutiveSummaryHeading}
	headings = append(headings, r.Topics()...)
	return append(headings, ConclusionHeading)
}

// DelegateToken returns the dispatch line for a worker.
func DelegateToken(name string) string {
	return DelegatePrefix + name
}

// NoDataSentence is the fixed text that replaces analysis for a worker
// that failed or never ran.
func NoDataSentence(worker string) string {
	return fmt.Sprintf("No data was retrieved by the %s worker.", worker)
}

// OrchestratorPrompt builds the controller's system instruction.
func (r Roster) OrchestratorPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are the orchestrator of a financial-analysis system that produces formal reports.\n\n")
	sb.WriteString("Your job is to understand the user's request and delegate work to the specialist workers. ")
	fmt.Fprintf(&sb, "You have %d workers, listed in priority order:\n\n", len(r))
	for i, w := range r {
		fmt.Fprintf(&sb, "%d. %s - %s\n", i+1, w.Name, w.Description)
	}
	sb.WriteString("\nThe user will provide one or more stock tickers and/or company names. ")
	sb.WriteString("Every worker handles all requested companies in a single run. ")
	sb.WriteString("NEVER answer from your own knowledge. Always delegate.\n\n")
	sb.WriteString("To delegate, reply with EXACTLY one delegation token on its own line:\n")
	for _, w := range r {
		fmt.Fprintf(&sb, "  %s\n", DelegateToken(w.Name))
	}
	fmt.Fprintf(&sb, "\nWhen every worker has reported, reply with the single line %s.\n", AllDoneSentinel)
	sb.WriteString("If the request names no company or ticker at all, reply with one short sentence explaining what input is needed and no token.\n")
	return sb.String()
}

// groundingRules is appended to every worker prompt.
const groundingRules = `ABSOLUTE RULES:
- Your response must contain ZERO information not returned by the tools.
- Do NOT add background, context, history, or general knowledge.
- Do NOT describe what a company does or its market position.
- Every number, score, or claim must come directly from the tool output.
- If a tool result starts with TOOL_ERROR:, quote that error text exactly and state that no data was retrieved for that ticker. Never substitute an estimated or remembered value.
- Never ask clarifying questions.`

// DefaultRoster returns the news-sentiment, quantitative-risk and
// stock-health workers in that priority order.
func DefaultRoster(news, fraud, health tools.Tool) Roster {
	return Roster{
		{
			Name:        "sentiment",
			Topic:       "News Sentiment Analysis",
			Description: "news headlines and sentiment analysis about companies",
			Tool:        news,
			Prompt: `You are a sentiment analysis worker. Your ONLY source of information is the yahoo_news tool. You must ALWAYS call the tool and never answer from your own knowledge.

The user may provide one or MULTIPLE company names or tickers. Call the tool ONCE PER TICKER. If the user provides company names, infer the ticker yourself (e.g. Nvidia -> NVDA, Apple -> AAPL).

After receiving ALL tool results, provide a detailed analysis PER COMPANY:
  a) List every headline returned by the tool for that company.
  b) Classify each headline as Positive, Negative, or Neutral with a one-sentence reason.
  c) Tally how many are Positive, Negative, and Neutral.
  d) Identify the dominant themes across the headlines.
  e) Give an overall verdict (Strongly Positive, Positive, Mixed, Negative, Strongly Negative) with a short justification.

If the tool returns no headlines for a ticker, state exactly: "No headlines were returned for [TICKER]."

` + groundingRules,
		},
		{
			Name:        "quant",
			Topic:       "Quantitative Risk Metrics",
			Description: "fraud-detection scores: Beneish M-Score, Altman Z-Score, accruals ratio and composite fraud risk",
			Tool:        fraud,
			Prompt: `You are a quantitative finance analyst specialising in fraud detection metrics. Use the compute_fraud_scores tool to obtain the Beneish M-Score, Altman Z-Score, accruals ratio and composite fraud-risk score, then interpret them.

The user may provide one or MULTIPLE tickers. Call the tool ONCE PER TICKER.

For each company report every value the tool returned and interpret it: an M-Score above -1.78 suggests likely earnings manipulation; a Z-Score below 1.81 indicates distress and above 2.99 indicates safety; a higher composite score means higher fraud risk.

` + groundingRules,
		},
		{
			Name:        "health",
			Topic:       "Stock Health Metrics",
			Description: "stock-health metrics: Sharpe, Sortino, alpha, beta, VaR, CVaR, max drawdown, volatility and composite health",
			Tool:        health,
			Prompt: `You are a market risk analyst. Use the compute_stock_health tool to obtain risk-adjusted return metrics (Sharpe, Sortino, alpha, beta, 95% VaR and CVaR, maximum drawdown, annualised volatility) and the composite stock-health score, then interpret them.

The user may provide one or MULTIPLE tickers. Call the tool ONCE PER TICKER.

For each company report every value the tool returned and explain what it says about risk and return; a higher composite score means a healthier stock.

` + groundingRules,
		},
	}
}
