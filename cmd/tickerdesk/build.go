package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/tickerdesk/internal/config"
	"github.com/ShayCichocki/tickerdesk/internal/llm"
	"github.com/ShayCichocki/tickerdesk/internal/market"
	"github.com/ShayCichocki/tickerdesk/internal/orchestrator"
	"github.com/ShayCichocki/tickerdesk/internal/store"
	"github.com/ShayCichocki/tickerdesk/internal/tools"
)

// dataTimeout bounds one call to the news API or the metrics service.
const dataTimeout = 30 * time.Second

// openStore opens and migrates the score and report database.
func openStore(cfg *config.Config) (*store.DB, error) {
	path := cfg.Store.Path
	if path == "" {
		path = store.DefaultPath()
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	if cfg.Store.Freshness > 0 {
		db.SetFreshness(cfg.Store.Freshness)
	}
	return db, nil
}

// newPlanner creates the model planner from the anthropic settings.
func newPlanner(cfg *config.Config) (llm.Planner, error) {
	clientCfg := llm.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		MaxTokens:     cfg.Anthropic.MaxTokens,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		clientCfg.APIKey = key
	}
	client, err := llm.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	return llm.NewAnthropicPlanner(client), nil
}

// newRoster builds the three data tools, each behind a result cache. Score
// tools record into db when it is non-nil.
func newRoster(cfg *config.Config, db *store.DB) orchestrator.Roster {
	httpClient := &http.Client{Timeout: dataTimeout}
	cacheCfg := tools.CacheConfig{Size: cfg.Data.CacheSize, TTL: cfg.Data.CacheTTL}

	rapidKey, err := config.GetRapidAPIKey(cfg)
	if err != nil {
		log.Printf("[tickerdesk] %v; the news worker will report missing data", err)
	}

	var recorder tools.ScoreRecorder
	if db != nil {
		recorder = db
	}
	metrics := market.NewClient(cfg.Data.MetricsBaseURL, httpClient)

	return orchestrator.DefaultRoster(
		tools.NewCached(tools.NewNewsTool(cfg.Data.NewsBaseURL, rapidKey, httpClient), cacheCfg),
		tools.NewCached(tools.NewFraudScoreTool(metrics, recorder), cacheCfg),
		tools.NewCached(tools.NewStockHealthTool(metrics, recorder), cacheCfg),
	)
}

// engineConfig applies the configured caps to the default roster config.
func engineConfig(cfg *config.Config, roster orchestrator.Roster) orchestrator.Config {
	oc := orchestrator.DefaultConfig(roster)
	oc.MaxDelegations = cfg.Orchestrator.MaxDelegations
	oc.MaxToolIterations = cfg.Orchestrator.MaxToolIterations
	oc.MinFinalAnswerLength = cfg.Orchestrator.MinFinalAnswerLength
	return oc
}

var (
	debugOnce   sync.Once
	debugLogger *orchestrator.DebugLogger
)

// sharedDebugLogger opens the orchestrator debug log once per process when
// TICKERDESK_DEBUG is set. It returns nil otherwise.
func sharedDebugLogger() *orchestrator.DebugLogger {
	debugOnce.Do(func() {
		if os.Getenv("TICKERDESK_DEBUG") == "" {
			return
		}
		l, err := orchestrator.NewDebugLogger(orchestrator.DefaultDebugLogPath())
		if err != nil {
			log.Printf("[tickerdesk] debug log disabled: %v", err)
			return
		}
		debugLogger = l
	})
	return debugLogger
}

// buildEngine wires config into a report engine.
func buildEngine(cfg *config.Config, db *store.DB, opts ...orchestrator.Option) (*orchestrator.Engine, error) {
	planner, err := newPlanner(cfg)
	if err != nil {
		return nil, err
	}
	if l := sharedDebugLogger(); l != nil {
		opts = append(opts, orchestrator.WithDebugLogger(l))
	}
	return orchestrator.NewEngine(engineConfig(cfg, newRoster(cfg, db)), planner, opts...)
}
