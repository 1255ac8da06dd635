package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/tickerdesk/internal/llm"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// Synthesizer writes the final report from user messages and worker
// results only, then condenses it into a summary in a second pass.
type Synthesizer struct {
	planner       llm.Planner
	roster        Roster
	reportPrompt  string
	summaryPrompt string
	now           func() time.Time
}

// NewSynthesizer creates a synthesizer for roster.
func NewSynthesizer(planner llm.Planner, roster Roster) *Synthesizer {
	return &Synthesizer{
		planner:       planner,
		roster:        roster,
		reportPrompt:  reportPrompt(roster),
		summaryPrompt: summaryPrompt,
		now:           time.Now,
	}
}

// Synthesize returns the report and its summary together. tallies holds the
// tool-call counts of each worker run and may be nil.
func (s *Synthesizer) Synthesize(ctx context.Context, userMessages, workerResults []models.Message, tallies map[string]ToolTally) (models.Report, error) {
	status := ClassifyWorkers(s.roster, workerResults, tallies)
	for _, w := range s.roster {
		log.Printf("[synthesizer] %s worker: %s", w.Name, status[w.Name])
	}

	history := make([]models.Message, 0, len(userMessages)+1)
	for _, m := range userMessages {
		if m.Role == models.RoleUser {
			history = append(history, m)
		}
	}
	history = append(history, models.NewUserMessage(s.workerDigest(workerResults, status)))

	resp, err := s.planner.Invoke(ctx, llm.Request{
		System:  fmt.Sprintf("%s\nToday's date is %s.", s.reportPrompt, s.now().Format("January 2, 2006")),
		History: history,
	})
	if err != nil {
		return models.Report{}, fmt.Errorf("synthesize report: %w", err)
	}
	report := EnsureSections(resp.Content, s.roster, status)

	summary, err := s.Summarize(ctx, report)
	if err != nil {
		return models.Report{}, err
	}

	return models.Report{
		Report:      report,
		Summary:     summary,
		Synthesized: true,
	}, nil
}

// Summarize condenses a finished report. The model sees only the report.
// An empty model answer falls back to the report's executive summary.
func (s *Synthesizer) Summarize(ctx context.Context, report string) (string, error) {
	resp, err := s.planner.Invoke(ctx, llm.Request{
		System:  s.summaryPrompt,
		History: []models.Message{models.NewUserMessage(report)},
	})
	if err != nil {
		return "", fmt.Errorf("summarize report: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		summary, _ = SectionBody(report, ExecutiveSummaryHeading)
	}
	return summary, nil
}

// workerDigest packs every worker result into one origin-labelled message
// and names the workers that did not run.
func (s *Synthesizer) workerDigest(results []models.Message, status map[string]WorkerStatus) string {
	var sb strings.Builder
	sb.WriteString("Worker results follow. They are your only source of data.\n")
	for _, m := range results {
		if !m.IsWorkerResult() {
			continue
		}
		fmt.Fprintf(&sb, "\n=== %s worker ===\n%s\n", m.Origin, strings.TrimSpace(m.Content))
	}
	for _, w := range s.roster {
		if status[w.Name] == WorkerMissing {
			fmt.Fprintf(&sb, "\n=== %s worker ===\n(no result: this worker did not run)\n", w.Name)
		}
	}
	return sb.String()
}

func reportPrompt(roster Roster) string {
	var sb strings.Builder
	sb.WriteString("Write a FORMAL REPORT using ONLY the data the workers returned.\n\n")
	sb.WriteString("REPORT FORMAT (markdown):\n")
	fmt.Fprintf(&sb, "- Start with the title line: # %s: <all companies/tickers covered>\n", ReportTitle)
	sb.WriteString("- Then a line with today's date.\n")
	sb.WriteString("- Then exactly these level-two sections, in this order, with these exact headings:\n")
	for _, h := range roster.SectionHeadings() {
		fmt.Fprintf(&sb, "    ## %s\n", h)
	}
	sb.WriteString("- Inside each topic section, use one level-three heading per company when several companies are covered.\n")
	sb.WriteString("- When several companies are covered, put a side-by-side comparison inside the conclusion section.\n")
	sb.WriteString("- Never omit a section. If a worker returned no data or an error, the section must say exactly:\n")
	for _, w := range roster {
		fmt.Fprintf(&sb, "    %s -> \"%s\"\n", w.Topic, NoDataSentence(w.Name))
	}
	sb.WriteString(`
ABSOLUTE DATA-INTEGRITY RULES (NEVER VIOLATE):
- The report must contain ONLY information present in the worker results.
- Do NOT add background, company descriptions, market context, historical facts, or general knowledge.
- Do NOT infer, extrapolate, speculate, or editorialize beyond the data.
- Every number must appear verbatim in a worker result. Never estimate a missing value.
- If a worker quoted a TOOL_ERROR, say that data was not retrieved and do not invent a substitute.
- Do NOT write any DELEGATE token.
`)
	return sb.String()
}

const summaryPrompt = `Condense the financial analysis report you are given into a short executive summary of one or two paragraphs.
Use ONLY statements present in the report. Do not add numbers, facts or opinions that the report does not contain.
If the report states that data was not retrieved for a topic, say so briefly.`
