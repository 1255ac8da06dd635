package orchestrator

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/tickerdesk/internal/agent"
	"github.com/ShayCichocki/tickerdesk/internal/tools"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// WorkerStatus classifies a worker's contribution to a report.
type WorkerStatus int

const (
	// WorkerMissing means the worker never ran.
	WorkerMissing WorkerStatus = iota
	// WorkerFailed means the worker ran but no tool call returned data.
	WorkerFailed
	// WorkerPartial means some tool calls returned data and some failed.
	WorkerPartial
	// WorkerSucceeded means the worker returned data.
	WorkerSucceeded
)

func (s WorkerStatus) String() string {
	switch s {
	case WorkerFailed:
		return "failed"
	case WorkerPartial:
		return "partial"
	case WorkerSucceeded:
		return "succeeded"
	default:
		return "missing"
	}
}

// ToolTally counts the tool calls of one worker run.
type ToolTally struct {
	Calls  int
	Errors int
}

// Succeeded returns the number of calls that returned data.
func (t ToolTally) Succeeded() int {
	return t.Calls - t.Errors
}

// ClassifyWorkers derives each roster worker's status from the results.
// When tallies has an entry with tool calls for a worker, the status comes
// from its counts; otherwise a quoted tool error marks the worker failed.
func ClassifyWorkers(roster Roster, results []models.Message, tallies map[string]ToolTally) map[string]WorkerStatus {
	byOrigin := make(map[string]string, len(results))
	for _, m := range results {
		if m.IsWorkerResult() {
			byOrigin[m.Origin] = m.Content
		}
	}

	status := make(map[string]WorkerStatus, len(roster))
	for _, w := range roster {
		content, ok := byOrigin[w.Name]
		tally, counted := tallies[w.Name]
		switch {
		case !ok:
			status[w.Name] = WorkerMissing
		case strings.TrimSpace(content) == "" ||
			strings.TrimSpace(content) == agent.FallbackText(w.Name):
			status[w.Name] = WorkerFailed
		case counted && tally.Calls > 0 && tally.Succeeded() <= 0:
			status[w.Name] = WorkerFailed
		case counted && tally.Calls > 0 && tally.Errors > 0:
			status[w.Name] = WorkerPartial
		case counted && tally.Calls > 0:
			status[w.Name] = WorkerSucceeded
		case strings.Contains(content, tools.ErrorMarker):
			status[w.Name] = WorkerFailed
		default:
			status[w.Name] = WorkerSucceeded
		}
	}
	return status
}

type section struct {
	heading string
	key     string
	body    []string
}

var numberedHeading = regexp.MustCompile(`^\d+[.)]\s*`)

// normalizeHeading lower-cases a heading and strips markdown markers and
// leading numbering so "## 1. News Sentiment Analysis" matches the topic.
func normalizeHeading(h string) string {
	h = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(h), "#"))
	h = numberedHeading.ReplaceAllString(h, "")
	h = strings.Trim(h, "*_ ")
	return strings.ToLower(h)
}

// EnsureSections rewrites report so every fixed section exists exactly
// once, in canonical order: the executive summary, one section per roster
// topic, then the conclusion. Any other level-two section the model wrote
// is folded into the conclusion as a level-three subsection, so the heading
// count never depends on the model. Sections of workers that never ran are
// replaced by the no-data sentence; sections of failed workers gain it if
// the model left it out. Partially failed workers keep their data as is.
func EnsureSections(report string, roster Roster, status map[string]WorkerStatus) string {
	preamble, sections := splitSections(report)

	byKey := make(map[string]*section, len(sections))
	var order []*section
	for i := range sections {
		s := &sections[i]
		if existing, ok := byKey[s.key]; ok {
			existing.body = append(existing.body, s.body...)
			continue
		}
		byKey[s.key] = s
		order = append(order, s)
	}

	take := func(heading, fallback string) *section {
		key := normalizeHeading(heading)
		s, ok := byKey[key]
		if !ok {
			s = &section{heading: "## " + heading, key: key}
		}
		delete(byKey, key)
		if isBlank(s.body) {
			s.body = []string{"", fallback, ""}
		}
		return s
	}

	out := []*section{take(ExecutiveSummaryHeading, "No executive summary was produced.")}
	for _, w := range roster {
		s := take(w.Topic, NoDataSentence(w.Name))
		switch status[w.Name] {
		case WorkerMissing:
			s.body = []string{"", NoDataSentence(w.Name), ""}
		case WorkerFailed:
			if !strings.Contains(strings.Join(s.body, "\n"), "No data was retrieved") {
				s.body = append(trimTrailingBlank(s.body), "", NoDataSentence(w.Name), "")
			}
		}
		out = append(out, s)
	}
	conclusion := take(ConclusionHeading, "No conclusion could be drawn from the retrieved data.")
	for _, s := range order {
		if _, extra := byKey[s.key]; !extra {
			continue
		}
		conclusion.body = append(trimTrailingBlank(conclusion.body), "", "#"+s.heading)
		conclusion.body = append(conclusion.body, trimTrailingBlank(s.body)...)
	}
	out = append(out, conclusion)

	var sb strings.Builder
	pre := strings.TrimSpace(strings.Join(preamble, "\n"))
	if !hasTitle(pre) {
		if pre == "" {
			pre = "# " + ReportTitle
		} else {
			pre = "# " + ReportTitle + "\n\n" + pre
		}
	}
	sb.WriteString(pre)
	sb.WriteString("\n")
	for _, s := range out {
		sb.WriteString("\n")
		sb.WriteString(s.heading)
		sb.WriteString("\n")
		body := strings.TrimSpace(strings.Join(s.body, "\n"))
		if body != "" {
			sb.WriteString("\n")
			sb.WriteString(body)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// splitSections splits markdown at level-two headings.
func splitSections(report string) ([]string, []section) {
	var preamble []string
	var sections []section
	for _, line := range strings.Split(strings.ReplaceAll(report, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			sections = append(sections, section{
				heading: trimmed,
				key:     normalizeHeading(trimmed),
			})
			continue
		}
		if len(sections) == 0 {
			preamble = append(preamble, line)
			continue
		}
		last := &sections[len(sections)-1]
		last.body = append(last.body, line)
	}
	return preamble, sections
}

// SectionHeadingsIn returns the level-two headings of a markdown report in
// order, normalized.
func SectionHeadingsIn(report string) []string {
	_, sections := splitSections(report)
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.key
	}
	return out
}

// SectionBody returns the body of the first level-two section matching
// heading, trimmed.
func SectionBody(report, heading string) (string, bool) {
	key := normalizeHeading(heading)
	_, sections := splitSections(report)
	for _, s := range sections {
		if s.key == key {
			return strings.TrimSpace(strings.Join(s.body, "\n")), true
		}
	}
	return "", false
}

func hasTitle(preamble string) bool {
	for _, line := range strings.Split(preamble, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "# ") {
			return true
		}
	}
	return false
}

func isBlank(lines []string) bool {
	return strings.TrimSpace(strings.Join(lines, "")) == ""
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
