// Package server exposes report generation, stored scores and voice calls
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/tickerdesk/internal/notify"
	"github.com/ShayCichocki/tickerdesk/internal/orchestrator"
	"github.com/ShayCichocki/tickerdesk/internal/store"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// ReportGenerator runs report tasks.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, entities []string) (models.Report, error)
	Stream(ctx context.Context, entities []string, emitter *orchestrator.EventEmitter) (models.Report, error)
}

// Caller places voice calls.
type Caller interface {
	Call(ctx context.Context, phone, message string) (string, error)
}

// AlertTrigger checks finished reports for risk alerts in the background.
type AlertTrigger interface {
	Fire(tickers []string, summary string)
}

// Config holds HTTP settings.
type Config struct {
	Addr         string
	CORS         bool
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the standard HTTP settings.
func DefaultConfig() Config {
	return Config{
		Addr:        ":5000",
		CORS:        true,
		ReadTimeout: 30 * time.Second,
		// Reports take minutes; the write deadline covers the whole handler.
		WriteTimeout: 10 * time.Minute,
	}
}

// Deps are the services the handlers use. Only Reports is required.
type Deps struct {
	Reports  ReportGenerator
	Scores   store.ScoreStore
	History  store.ReportStore
	Caller   Caller
	Trigger  AlertTrigger
	Audio    *notify.AudioStore
	Gatherer prometheus.Gatherer
}

// Server is the HTTP service.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	deps       Deps
}

// New builds the server and registers its routes.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Reports == nil {
		return nil, fmt.Errorf("report generator is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())

	if cfg.CORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
		corsConfig.AllowWebSockets = true
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		deps: deps,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/report", s.handleReport)
	s.engine.GET("/report/stream", s.handleReportStream)
	s.engine.GET("/reports", s.handleListReports)
	s.engine.GET("/reports/:id", s.handleGetReport)
	s.engine.GET("/scores/:ticker", s.handleScores)
	s.engine.POST("/call", s.handleCall)
	s.engine.GET("/audio/:id", s.handleAudio)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ParseTickers splits a comma-separated list, trims and upper-cases each
// entry and drops empty ones.
func ParseTickers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if t := strings.ToUpper(strings.TrimSpace(part)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func errorJSON(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
