package orchestrator

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/tickerdesk/internal/llm/llmtest"
)

var numberPattern = regexp.MustCompile(`\d+\.\d+`)

func canonicalHeadings(roster Roster) []string {
	var out []string
	for _, h := range roster.SectionHeadings() {
		out = append(out, normalizeHeading(h))
	}
	return out
}

func TestEngine_AllWorkersSucceed(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "NVDA")

	engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
	require.NoError(t, err)

	report, err := engine.GenerateReport(context.Background(), []string{"NVDA"})
	require.NoError(t, err)

	assert.Equal(t, []string{"NVDA"}, report.Entities)
	assert.Equal(t, 3, report.Delegations)
	assert.True(t, report.Synthesized)
	assert.Equal(t, "The report covers the requested tickers.", report.Summary)
	assert.False(t, report.CreatedAt.IsZero())
	assert.Equal(t, canonicalHeadings(stubs.roster()), SectionHeadingsIn(report.Report))
	assert.True(t, strings.HasPrefix(report.Report, "# "+ReportTitle))

	// The orchestrator model is consulted once; every later step is
	// derived from the completed set.
	assert.Equal(t, 1, s.orchestrator.Calls())
	assert.Equal(t, []string{"NVDA"}, stubs.news.Calls())
	assert.Equal(t, []string{"NVDA"}, stubs.fraud.Calls())
	assert.Equal(t, []string{"NVDA"}, stubs.health.Calls())

	quant, ok := SectionBody(report.Report, "Quantitative Risk Metrics")
	require.True(t, ok)
	assert.Contains(t, quant, "Composite fraud risk score: 21.5000")

	toolText := stubs.news.out + stubs.fraud.out + stubs.health.out
	for _, n := range numberPattern.FindAllString(report.Report, -1) {
		assert.Contains(t, toolText, n, "report number %s is not in any tool output", n)
	}
}

func TestEngine_WorkerSeesOnlyUserMessages(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "NVDA")

	engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
	require.NoError(t, err)
	_, err = engine.GenerateReport(context.Background(), []string{"NVDA"})
	require.NoError(t, err)

	// The quant worker runs after sentiment completed; its first request
	// must not carry the directive or the sentiment result.
	reqs := s.workers["compute_fraud_scores"].Requests()
	require.NotEmpty(t, reqs)
	require.Len(t, reqs[0].History, 1)
	assert.Contains(t, reqs[0].History[0].Content, "NVDA")

	synth := s.synth.Requests()
	require.Len(t, synth, 1)
	for _, m := range synth[0].History {
		assert.Equal(t, "user", string(m.Role))
		assert.False(t, m.HasToolCalls())
	}
}

func TestEngine_ToolErrorIsQuotedNotFabricated(t *testing.T) {
	stubs := newStubTools()
	stubs.fraud.err = errors.New("ticker not found")
	stubs.health.err = errors.New("ticker not found")
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "ZZZZ")

	engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
	require.NoError(t, err)

	report, err := engine.GenerateReport(context.Background(), []string{"ZZZZ"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Delegations)
	assert.Equal(t, canonicalHeadings(stubs.roster()), SectionHeadingsIn(report.Report))

	quant, ok := SectionBody(report.Report, "Quantitative Risk Metrics")
	require.True(t, ok)
	assert.Contains(t, quant, "TOOL_ERROR: compute_fraud_scores failed: ticker not found")
	assert.Contains(t, quant, NoDataSentence("quant"))
	assert.Empty(t, numberPattern.FindAllString(quant, -1))

	health, ok := SectionBody(report.Report, "Stock Health Metrics")
	require.True(t, ok)
	assert.Contains(t, health, NoDataSentence("health"))
}

func TestEngine_PartialToolFailureKeepsData(t *testing.T) {
	stubs := newStubTools()
	stubs.fraud.err = errors.New("ticker not found")
	stubs.fraud.failOn = "ZZZZ"
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "AAPL", "ZZZZ")

	engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
	require.NoError(t, err)

	report, err := engine.GenerateReport(context.Background(), []string{"AAPL", "ZZZZ"})
	require.NoError(t, err)
	assert.Equal(t, canonicalHeadings(stubs.roster()), SectionHeadingsIn(report.Report))

	quant, ok := SectionBody(report.Report, "Quantitative Risk Metrics")
	require.True(t, ok)
	assert.Contains(t, quant, "Composite fraud risk score: 21.5000")
	assert.Contains(t, quant, "TOOL_ERROR: compute_fraud_scores failed: ticker not found")
	assert.NotContains(t, quant, NoDataSentence("quant"))
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab...", truncate("abcdef", 2))

	// "é" is two bytes; a cut at byte 2 would split it.
	got := truncate("aébc", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("日本", 100), 200)))
}

func TestEngine_DelegationCapForcesSynthesis(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "NVDA")

	cfg := DefaultConfig(stubs.roster())
	cfg.MaxDelegations = 1
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)
	engine, err := NewEngine(cfg, s.planner(), WithMetrics(metrics))
	require.NoError(t, err)

	report, err := engine.GenerateReport(context.Background(), []string{"NVDA"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Delegations)
	assert.True(t, report.Synthesized)
	assert.Empty(t, stubs.fraud.Calls())
	assert.Empty(t, stubs.health.Calls())
	assert.Equal(t, canonicalHeadings(stubs.roster()), SectionHeadingsIn(report.Report))

	for _, name := range []string{"quant", "health"} {
		w, _ := stubs.roster().Lookup(name)
		body, ok := SectionBody(report.Report, w.Topic)
		require.True(t, ok)
		assert.Equal(t, NoDataSentence(name), body)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.capsReached.WithLabelValues("delegations")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.delegations.WithLabelValues("sentiment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.reports.WithLabelValues("synthesized")))
}

func TestEngine_ZeroDelegationCap(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "NVDA")

	cfg := DefaultConfig(stubs.roster())
	cfg.MaxDelegations = 0
	engine, err := NewEngine(cfg, s.planner())
	require.NoError(t, err)

	_, err = engine.GenerateReport(context.Background(), []string{"NVDA"})
	assert.ErrorIs(t, err, ErrNoAnswer)
	assert.Empty(t, stubs.news.Calls())
}

func TestEngine_ZeroToolCap(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "NVDA")

	cfg := DefaultConfig(stubs.roster())
	cfg.MaxToolIterations = 0
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)
	engine, err := NewEngine(cfg, s.planner(), WithMetrics(metrics))
	require.NoError(t, err)

	report, err := engine.GenerateReport(context.Background(), []string{"NVDA"})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Delegations)
	assert.Empty(t, stubs.news.Calls())
	assert.Empty(t, stubs.fraud.Calls())
	assert.Empty(t, stubs.health.Calls())
	for tool, p := range s.workers {
		assert.Equal(t, 1, p.Calls(), "worker with %s should call the model once", tool)
	}
	for _, w := range stubs.roster() {
		body, ok := SectionBody(report.Report, w.Topic)
		require.True(t, ok)
		assert.Contains(t, body, NoDataSentence(w.Name))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.capsReached.WithLabelValues("tool_iterations")))
}

func TestEngine_OrchestratorAnswerBypassesSynthesis(t *testing.T) {
	stubs := newStubTools()
	answer := "Please provide at least one stock ticker or company name."
	s := groundedScript([]llmtest.Step{llmtest.Reply(answer)}, "NVDA")

	engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
	require.NoError(t, err)

	report, err := engine.GenerateReport(context.Background(), []string{"hello"})
	require.NoError(t, err)

	assert.Equal(t, answer, report.Report)
	assert.False(t, report.Synthesized)
	assert.Equal(t, 0, report.Delegations)
	assert.Equal(t, 0, s.synth.Calls())
	assert.Equal(t, 1, s.summary.Calls())
}

func TestEngine_NoEntities(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript(nil)
	engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
	require.NoError(t, err)

	_, err = engine.GenerateReport(context.Background(), []string{" ", ""})
	assert.ErrorIs(t, err, ErrNoEntities)
	assert.Equal(t, 0, s.orchestrator.Calls())
}

func TestEngine_PlannerErrorPropagates(t *testing.T) {
	stubs := newStubTools()
	boom := errors.New("rate limited")

	t.Run("orchestrator", func(t *testing.T) {
		s := groundedScript([]llmtest.Step{llmtest.Fail(boom)}, "NVDA")
		engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
		require.NoError(t, err)

		_, err = engine.GenerateReport(context.Background(), []string{"NVDA"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("worker", func(t *testing.T) {
		s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "NVDA")
		s.workers["yahoo_news"] = llmtest.NewPlanner(llmtest.Fail(boom))
		engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
		require.NoError(t, err)

		_, err = engine.GenerateReport(context.Background(), []string{"NVDA"})
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "worker sentiment")
	})
}

func TestEngine_CanceledContext(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "NVDA")
	engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.GenerateReport(ctx, []string{"NVDA"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_StreamEmitsLifecycle(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript([]llmtest.Step{llmtest.Reply("DELEGATE:sentiment")}, "NVDA")
	engine, err := NewEngine(DefaultConfig(stubs.roster()), s.planner())
	require.NoError(t, err)

	emitter := NewEventEmitter(128)
	_, err = engine.Stream(context.Background(), []string{"NVDA"}, emitter)
	require.NoError(t, err)

	counts := make(map[EventType]int)
	var order []EventType
	for ev := range emitter.Events() {
		counts[ev.Type]++
		order = append(order, ev.Type)
	}

	assert.Equal(t, 1, counts[EventTaskStarted])
	assert.Equal(t, 3, counts[EventWorkerStarted])
	assert.Equal(t, 3, counts[EventToolCall])
	assert.Equal(t, 3, counts[EventWorkerCompleted])
	assert.Equal(t, 1, counts[EventSynthesisStarted])
	assert.Equal(t, 1, counts[EventReportReady])
	assert.Zero(t, counts[EventTaskFailed])
	require.NotEmpty(t, order)
	assert.Equal(t, EventTaskStarted, order[0])
	assert.Equal(t, EventReportReady, order[len(order)-1])
}

func TestNewEngine_Validation(t *testing.T) {
	stubs := newStubTools()
	s := groundedScript(nil)

	_, err := NewEngine(DefaultConfig(stubs.roster()), nil)
	assert.Error(t, err)

	cfg := DefaultConfig(stubs.roster())
	cfg.MaxDelegations = -1
	_, err = NewEngine(cfg, s.planner())
	assert.Error(t, err)

	_, err = NewEngine(DefaultConfig(nil), s.planner())
	assert.Error(t, err)
}

func TestCleanEntities(t *testing.T) {
	assert.Equal(t, []string{"NVDA", "Apple"}, CleanEntities([]string{" NVDA", "", "nvda", "Apple "}))
	assert.Empty(t, CleanEntities(nil))
}
