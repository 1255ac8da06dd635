package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/tickerdesk/internal/config"
	"github.com/ShayCichocki/tickerdesk/internal/notify"
	"github.com/ShayCichocki/tickerdesk/internal/orchestrator"
	"github.com/ShayCichocki/tickerdesk/internal/schedule"
	"github.com/ShayCichocki/tickerdesk/internal/server"
	"github.com/ShayCichocki/tickerdesk/internal/store"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP report service",
	Long: `Run the HTTP report service.

Routes:
  GET  /report?tickers=AAPL,MSFT   generate a report
  GET  /report/stream?tickers=...  websocket with progress events
  GET  /reports, /reports/:id      stored reports
  GET  /scores/:ticker             stored fraud and health scores
  POST /call                       place a voice call
  GET  /metrics                    Prometheus metrics

When schedule.cron and schedule.tickers are set, a watchlist report is
generated on that schedule. Config file edits are picked up without a
restart when --watch is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		return runServe(cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload engine settings when the config file changes")
}

// liveEngine is a report generator whose engine can be replaced while
// requests are running. Running tasks keep the engine they started with.
type liveEngine struct {
	mu     sync.RWMutex
	engine *orchestrator.Engine
}

func (l *liveEngine) get() *orchestrator.Engine {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine
}

func (l *liveEngine) set(e *orchestrator.Engine) {
	l.mu.Lock()
	l.engine = e
	l.mu.Unlock()
}

func (l *liveEngine) GenerateReport(ctx context.Context, entities []string) (models.Report, error) {
	return l.get().GenerateReport(ctx, entities)
}

func (l *liveEngine) Stream(ctx context.Context, entities []string, emitter *orchestrator.EventEmitter) (models.Report, error) {
	return l.get().Stream(ctx, entities, emitter)
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	metrics := orchestrator.DefaultMetrics()
	engine, err := buildEngine(cfg, db, orchestrator.WithMetrics(metrics))
	if err != nil {
		return err
	}
	live := &liveEngine{engine: engine}

	audio := notify.NewAudioStore(32, time.Hour)
	voice := notify.NewVoiceNotifier(voiceConfig(cfg), audio)
	trigger := newTrigger(cfg, db, voice)

	deps := server.Deps{
		Reports: live,
		Scores:  db,
		History: db,
		Caller:  voice,
		Audio:   audio,
	}
	if trigger != nil {
		deps.Trigger = trigger
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.Server.Addr
	srvCfg.CORS = cfg.Server.CORS
	srvCfg.Debug = cfg.Server.Debug
	srv, err := server.New(srvCfg, deps)
	if err != nil {
		return err
	}

	if serveWatch {
		watchConfig(live, db, metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.Schedule.Cron != "" {
		var t schedule.Trigger
		if trigger != nil {
			t = trigger
		}
		runner, err := schedule.New(cfg.Schedule.Cron, cfg.Schedule.Tickers, live, db, t)
		if err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
		g.Go(func() error {
			runner.Start(gctx)
			return nil
		})
	}

	err = g.Wait()
	trigger.Wait()
	return err
}

func voiceConfig(cfg *config.Config) notify.VoiceConfig {
	return notify.VoiceConfig{
		ElevenAPIKey:  cfg.Notify.ElevenAPIKey,
		VoiceID:       cfg.Notify.ElevenVoiceID,
		AccountSID:    cfg.Notify.TwilioAccountSID,
		AuthToken:     cfg.Notify.TwilioAuthToken,
		From:          cfg.Notify.TwilioFrom,
		DefaultPhone:  cfg.Notify.Phone,
		PublicBaseURL: cfg.Notify.PublicBaseURL,
	}
}

// newTrigger returns nil when alerts are disabled or no channel is set up.
func newTrigger(cfg *config.Config, scores notify.ScoreReader, voice *notify.VoiceNotifier) *notify.Trigger {
	if !cfg.Notify.Enabled {
		return nil
	}
	var channels notify.Multi
	if voice.Configured() && cfg.Notify.Phone != "" {
		channels = append(channels, voice)
	}
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			log.Printf("[tickerdesk] telegram alerts disabled: %v", err)
		} else {
			channels = append(channels, tg)
		}
	}
	if len(channels) == 0 {
		log.Printf("[tickerdesk] alerts enabled but no voice or telegram channel is configured")
		return nil
	}
	return notify.NewTrigger(scores, channels, cfg.Notify.RiskThreshold)
}

// watchConfig rebuilds the engine when the config file changes. Server and
// notification settings need a restart.
func watchConfig(live *liveEngine, db *store.DB, metrics *orchestrator.Metrics) {
	path := configPath
	if path == "" {
		path = config.GetProjectConfigPath()
	}
	if path == "" {
		path = config.GetUserConfigPath()
	}

	err := config.Watch(path, func(changed *config.Config) {
		cfg := changed
		if configPath == "" {
			// Reload every layer, not just the file that changed.
			layered, err := config.Load()
			if err != nil {
				log.Printf("[tickerdesk] config reload: %v", err)
				return
			}
			cfg = layered
		}
		engine, err := buildEngine(cfg, db, orchestrator.WithMetrics(metrics))
		if err != nil {
			log.Printf("[tickerdesk] config reload: %v", err)
			return
		}
		live.set(engine)
		log.Printf("[tickerdesk] config reloaded from %s", path)
	}, func(err error) {
		log.Printf("[tickerdesk] config reload: %v", err)
	})
	if err != nil {
		log.Printf("[tickerdesk] not watching config: %v", err)
	}
}
