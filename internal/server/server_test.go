package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/tickerdesk/internal/notify"
	"github.com/ShayCichocki/tickerdesk/internal/orchestrator"
	"github.com/ShayCichocki/tickerdesk/internal/store"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   [][]string
	err     error
	summary string
}

func (f *fakeGenerator) report(entities []string) models.Report {
	return models.Report{
		ID:          "rep-" + strings.Join(entities, "-"),
		Entities:    entities,
		Report:      "# Financial Analysis Report: " + strings.Join(entities, ", "),
		Summary:     f.summary,
		Delegations: 3,
		Synthesized: true,
		CreatedAt:   time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeGenerator) GenerateReport(_ context.Context, entities []string) (models.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, entities)
	f.mu.Unlock()
	if f.err != nil {
		return models.Report{}, f.err
	}
	return f.report(entities), nil
}

func (f *fakeGenerator) Stream(ctx context.Context, entities []string, emitter *orchestrator.EventEmitter) (models.Report, error) {
	defer emitter.Close()
	emitter.Emit(orchestrator.OrchestratorEvent{Type: orchestrator.EventTaskStarted, Phase: orchestrator.PhaseStart})
	emitter.Emit(orchestrator.OrchestratorEvent{Type: orchestrator.EventWorkerStarted, Phase: orchestrator.PhaseWorker, Worker: "news"})
	if f.err != nil {
		emitter.Emit(orchestrator.OrchestratorEvent{Type: orchestrator.EventTaskFailed, Error: f.err.Error()})
		return models.Report{}, f.err
	}
	emitter.Emit(orchestrator.OrchestratorEvent{Type: orchestrator.EventReportReady, Phase: orchestrator.PhaseDone})
	return f.GenerateReport(ctx, entities)
}

type fakeTrigger struct {
	mu    sync.Mutex
	fired [][]string
}

func (f *fakeTrigger) Fire(tickers []string, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, tickers)
}

type fakeCaller struct {
	phone, message string
	err            error
}

func (f *fakeCaller) Call(_ context.Context, phone, message string) (string, error) {
	f.phone, f.message = phone, message
	if f.err != nil {
		return "", f.err
	}
	return "CA1", nil
}

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	s, err := New(DefaultConfig(), deps)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Detail
}

func TestNew_RequiresGenerator(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Deps{Reports: &fakeGenerator{}})
	w := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestParseTickers(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, ParseTickers(" aapl, ,msft,"))
	assert.Empty(t, ParseTickers(" , "))
	assert.Empty(t, ParseTickers(""))
}

func TestReport(t *testing.T) {
	gen := &fakeGenerator{summary: "Short."}
	db := openStore(t)
	trigger := &fakeTrigger{}
	s := newTestServer(t, Deps{Reports: gen, History: db, Scores: db, Trigger: trigger})

	w := do(t, s, http.MethodGet, "/report?tickers=aapl,%20msft", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"AAPL", "MSFT"}, got.Entities)
	assert.True(t, strings.HasPrefix(got.Report, "# Financial Analysis Report"))
	assert.Contains(t, w.Body.String(), `"report_markdown"`)
	assert.Contains(t, w.Body.String(), `"tickers"`)

	stored, err := db.GetReport(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Report, stored.Report)
	assert.Equal(t, [][]string{{"AAPL", "MSFT"}}, trigger.fired)
}

func TestReport_Errors(t *testing.T) {
	t.Run("no tickers", func(t *testing.T) {
		gen := &fakeGenerator{}
		s := newTestServer(t, Deps{Reports: gen})
		w := do(t, s, http.MethodGet, "/report?tickers=%20,%20", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "No valid tickers provided.", detail(t, w))
		assert.Empty(t, gen.calls)
	})

	t.Run("generator rejects input", func(t *testing.T) {
		s := newTestServer(t, Deps{Reports: &fakeGenerator{err: orchestrator.ErrNoEntities}})
		w := do(t, s, http.MethodGet, "/report?tickers=AAPL", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("generation fails", func(t *testing.T) {
		trigger := &fakeTrigger{}
		s := newTestServer(t, Deps{Reports: &fakeGenerator{err: errors.New("model down")}, Trigger: trigger})
		w := do(t, s, http.MethodGet, "/report?tickers=AAPL", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, detail(t, w), "model down")
		assert.Empty(t, trigger.fired)
	})
}

func TestReportHistory(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	for i, id := range []string{"r1", "r2"} {
		require.NoError(t, db.SaveReport(ctx, &models.Report{
			ID:        id,
			Entities:  []string{"AAPL"},
			Report:    "# Report " + id,
			CreatedAt: time.Date(2026, 10, 19, i, 0, 0, 0, time.UTC),
		}))
	}
	s := newTestServer(t, Deps{Reports: &fakeGenerator{}, History: db})

	w := do(t, s, http.MethodGet, "/reports?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Reports []models.Report `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, "r2", list.Reports[0].ID)

	w = do(t, s, http.MethodGet, "/reports/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# Report r1")

	w = do(t, s, http.MethodGet, "/reports/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	noStore := newTestServer(t, Deps{Reports: &fakeGenerator{}})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, noStore, http.MethodGet, "/reports", "").Code)
}

func TestScores(t *testing.T) {
	db := openStore(t)
	_, err := db.UpsertScore(context.Background(), models.TickerScore{
		Ticker:    "NVDA",
		Kind:      models.ScoreKindFraud,
		Composite: 42.5,
	})
	require.NoError(t, err)
	s := newTestServer(t, Deps{Reports: &fakeGenerator{}, Scores: db})

	w := do(t, s, http.MethodGet, "/scores/nvda", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"ticker":"NVDA"`)
	assert.Contains(t, w.Body.String(), "42.5")

	w = do(t, s, http.MethodGet, "/scores/ZZZZ", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCall(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		caller := &fakeCaller{}
		s := newTestServer(t, Deps{Reports: &fakeGenerator{}, Caller: caller})
		w := do(t, s, http.MethodPost, "/call", `{"phone":"+15551234567","message":"Risk alert."}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"sent","sid":"CA1"}`, w.Body.String())
		assert.Equal(t, "+15551234567", caller.phone)
		assert.Equal(t, "Risk alert.", caller.message)
	})

	t.Run("missing fields", func(t *testing.T) {
		s := newTestServer(t, Deps{Reports: &fakeGenerator{}, Caller: &fakeCaller{}})
		w := do(t, s, http.MethodPost, "/call", `{"phone":"+1"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, Deps{Reports: &fakeGenerator{}, Caller: &fakeCaller{err: notify.ErrVoiceNotConfigured}})
		w := do(t, s, http.MethodPost, "/call", `{"phone":"+1","message":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		s = newTestServer(t, Deps{Reports: &fakeGenerator{}})
		w = do(t, s, http.MethodPost, "/call", `{"phone":"+1","message":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		s := newTestServer(t, Deps{Reports: &fakeGenerator{}, Caller: &fakeCaller{err: errors.New("twilio 500")}})
		w := do(t, s, http.MethodPost, "/call", `{"phone":"+1","message":"x"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAudio(t *testing.T) {
	audio := notify.NewAudioStore(2, time.Minute)
	id := audio.Put([]byte("MP3"))
	s := newTestServer(t, Deps{Reports: &fakeGenerator{}, Audio: audio})

	w := do(t, s, http.MethodGet, "/audio/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "MP3", w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/audio/unknown", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tickerdesk_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := newTestServer(t, Deps{Reports: &fakeGenerator{}, Gatherer: reg})
	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tickerdesk_test_total 1")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Deps{Reports: &fakeGenerator{}})
	req := httptest.NewRequest(http.MethodOptions, "/report", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func dialStream(t *testing.T, s *Server, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/report/stream?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStream(t *testing.T, conn *websocket.Conn) []StreamMessage {
	t.Helper()
	var msgs []StreamMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return msgs
		}
		msgs = append(msgs, msg)
	}
}

func TestReportStream(t *testing.T) {
	db := openStore(t)
	trigger := &fakeTrigger{}
	s := newTestServer(t, Deps{Reports: &fakeGenerator{}, History: db, Trigger: trigger})

	msgs := readStream(t, dialStream(t, s, "tickers=tsla"))
	require.Len(t, msgs, 4)
	for _, m := range msgs[:3] {
		assert.Equal(t, "event", m.Type)
		require.NotNil(t, m.Event)
	}
	assert.Equal(t, orchestrator.EventTaskStarted, msgs[0].Event.Type)
	assert.Equal(t, "news", msgs[1].Event.Worker)

	last := msgs[3]
	assert.Equal(t, "report", last.Type)
	require.NotNil(t, last.Report)
	assert.Equal(t, []string{"TSLA"}, last.Report.Entities)

	_, err := db.GetReport(context.Background(), last.Report.ID)
	assert.NoError(t, err)
	assert.Len(t, trigger.fired, 1)
}

func TestReportStream_Failure(t *testing.T) {
	s := newTestServer(t, Deps{Reports: &fakeGenerator{err: errors.New("boom")}})

	msgs := readStream(t, dialStream(t, s, "tickers=TSLA"))
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, detailReportFailed, last.Detail)
}

func TestReportStream_RejectsEmptyTickers(t *testing.T) {
	s := newTestServer(t, Deps{Reports: &fakeGenerator{}})
	w := do(t, s, http.MethodGet, "/report/stream?tickers=", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
