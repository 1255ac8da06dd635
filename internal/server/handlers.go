package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ShayCichocki/tickerdesk/internal/notify"
	"github.com/ShayCichocki/tickerdesk/internal/orchestrator"
	"github.com/ShayCichocki/tickerdesk/internal/store"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

const (
	detailNoTickers    = "No valid tickers provided."
	detailReportFailed = "Report generation failed. Check server logs."
	detailCallFailed   = "Call failed. Check server logs."
)

// StreamMessage is one websocket frame of a streamed report.
type StreamMessage struct {
	// Type is "event", "report" or "error".
	Type   string                          `json:"type"`
	Event  *orchestrator.OrchestratorEvent `json:"event,omitempty"`
	Report *models.Report                  `json:"report,omitempty"`
	Detail string                          `json:"detail,omitempty"`
}

// CallRequest is the body of POST /call.
type CallRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReport(c *gin.Context) {
	tickers := ParseTickers(c.Query("tickers"))
	if len(tickers) == 0 {
		errorJSON(c, http.StatusBadRequest, detailNoTickers)
		return
	}

	deps := s.deps
	report, err := deps.Reports.GenerateReport(c.Request.Context(), tickers)
	if errors.Is(err, orchestrator.ErrNoEntities) {
		errorJSON(c, http.StatusBadRequest, detailNoTickers)
		return
	}
	if err != nil {
		log.Printf("[server] report for %s failed: %v", strings.Join(tickers, ","), err)
		errorJSON(c, http.StatusInternalServerError, detailReportFailed)
		return
	}
	s.finish(c.Request.Context(), deps, &report)
	c.JSON(http.StatusOK, report)
}

// finish persists the report and fires the risk alert check.
func (s *Server) finish(ctx context.Context, deps Deps, report *models.Report) {
	if deps.History != nil {
		if err := deps.History.SaveReport(ctx, report); err != nil {
			log.Printf("[server] save report: %v", err)
		}
	}
	if deps.Trigger != nil {
		deps.Trigger.Fire(report.Entities, report.Summary)
	}
}

func (s *Server) handleReportStream(c *gin.Context) {
	tickers := ParseTickers(c.Query("tickers"))
	if len(tickers) == 0 {
		errorJSON(c, http.StatusBadRequest, detailNoTickers)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[server] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A read error means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	deps := s.deps
	emitter := orchestrator.NewEventEmitter(64)
	type outcome struct {
		report models.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := deps.Reports.Stream(ctx, tickers, emitter)
		done <- outcome{report, err}
	}()

	for ev := range emitter.Events() {
		if err := conn.WriteJSON(StreamMessage{Type: "event", Event: &ev}); err != nil {
			cancel()
		}
	}

	res := <-done
	if res.err != nil {
		log.Printf("[server] streamed report for %s failed: %v", strings.Join(tickers, ","), res.err)
		_ = conn.WriteJSON(StreamMessage{Type: "error", Detail: detailReportFailed})
	} else {
		s.finish(ctx, deps, &res.report)
		_ = conn.WriteJSON(StreamMessage{Type: "report", Report: &res.report})
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) handleListReports(c *gin.Context) {
	deps := s.deps
	if deps.History == nil {
		errorJSON(c, http.StatusServiceUnavailable, "Report history is not configured.")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	reports, err := deps.History.ListReports(c.Request.Context(), limit)
	if err != nil {
		log.Printf("[server] list reports: %v", err)
		errorJSON(c, http.StatusInternalServerError, "Could not list reports.")
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (s *Server) handleGetReport(c *gin.Context) {
	deps := s.deps
	if deps.History == nil {
		errorJSON(c, http.StatusServiceUnavailable, "Report history is not configured.")
		return
	}
	report, err := deps.History.GetReport(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "Report not found.")
		return
	}
	if err != nil {
		log.Printf("[server] get report: %v", err)
		errorJSON(c, http.StatusInternalServerError, "Could not load report.")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleScores(c *gin.Context) {
	deps := s.deps
	if deps.Scores == nil {
		errorJSON(c, http.StatusServiceUnavailable, "Score store is not configured.")
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	scores, err := deps.Scores.ListScores(c.Request.Context(), ticker)
	if err != nil {
		log.Printf("[server] list scores for %s: %v", ticker, err)
		errorJSON(c, http.StatusInternalServerError, "Could not load scores.")
		return
	}
	if len(scores) == 0 {
		errorJSON(c, http.StatusNotFound, "No scores stored for '"+ticker+"'.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "scores": scores})
}

func (s *Server) handleCall(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "Both phone and message are required.")
		return
	}
	deps := s.deps
	if deps.Caller == nil {
		errorJSON(c, http.StatusServiceUnavailable, "Voice calls are not configured.")
		return
	}

	sid, err := deps.Caller.Call(c.Request.Context(), req.Phone, req.Message)
	if errors.Is(err, notify.ErrVoiceNotConfigured) {
		errorJSON(c, http.StatusServiceUnavailable, "Voice calls are not configured.")
		return
	}
	if err != nil {
		log.Printf("[server] call failed: %v", err)
		errorJSON(c, http.StatusInternalServerError, detailCallFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "sid": sid})
}

func (s *Server) handleAudio(c *gin.Context) {
	deps := s.deps
	if deps.Audio == nil {
		errorJSON(c, http.StatusNotFound, "Audio not found.")
		return
	}
	clip, ok := deps.Audio.Get(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, "Audio not found.")
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", clip)
}
