// Command loqui runs the voice session backend: the session orchestrator,
// the capture/playback activity analyzers, and the HTTP control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/loquihq/loqui/internal/config"
	"github.com/loquihq/loqui/internal/health"
	"github.com/loquihq/loqui/internal/observe"
	"github.com/loquihq/loqui/internal/server"
	"github.com/loquihq/loqui/internal/session"
	"github.com/loquihq/loqui/pkg/audio"
	"github.com/loquihq/loqui/pkg/audio/activity"
	"github.com/loquihq/loqui/pkg/audio/rtc"
	"github.com/loquihq/loqui/pkg/realtime/openai"
	"github.com/loquihq/loqui/pkg/store"
	"github.com/loquihq/loqui/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env file may carry LOQUI_OPENAI_API_KEY / LOQUI_POSTGRES_DSN.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loqui: load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "loqui: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "loqui: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("loqui starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "loqui"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Session store ─────────────────────────────────────────────────────────
	var (
		st      store.Store
		checker health.Checker
	)
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to open session store", "err", err)
			return 1
		}
		st = pg
		checker = health.Checker{Name: "store", Check: pg.Ping}
		slog.Info("session store ready", "backend", "postgres")
	} else {
		st = store.NewMemStore()
		checker = health.Checker{Name: "store", Check: func(context.Context) error { return nil }}
		slog.Info("session store ready", "backend", "memory")
	}
	defer st.Close()

	// ── Orchestrator ──────────────────────────────────────────────────────────
	negotiator := openai.New(cfg.Realtime.APIKey, openaiOptions(cfg)...)

	orch, err := session.New(session.Config{
		Negotiator:          negotiator,
		Transport:           rtc.MockFactory(),
		Source:              audio.NewSilenceSource(48000),
		Store:               st,
		Metrics:             metrics,
		DefaultInstructions: cfg.Session.Instructions,
		DefaultVoice:        cfg.Realtime.Voice,
		PersistTimeout:      time.Duration(cfg.Session.PersistTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		slog.Error("failed to build orchestrator", "err", err)
		return 1
	}

	// ── Activity analyzers ────────────────────────────────────────────────────
	// The analyzers follow whatever track/sink the current session holds;
	// between sessions they see a not-ready source and emit zero frames.
	analyzerCfg := activity.Config{
		Smoothing:  cfg.Analyzer.Smoothing,
		WindowSize: cfg.Analyzer.WindowSize,
	}
	captureCfg := analyzerCfg
	captureCfg.Threshold = cfg.Analyzer.CaptureThreshold
	if captureCfg.Threshold == 0 {
		captureCfg.Threshold = activity.CaptureThreshold
	}
	playbackCfg := analyzerCfg
	playbackCfg.Threshold = cfg.Analyzer.PlaybackThreshold
	if playbackCfg.Threshold == 0 {
		playbackCfg.Threshold = activity.PlaybackThreshold
	}
	capture := activity.New(captureTap{orch}, captureCfg)
	playback := activity.New(playbackTap{orch}, playbackCfg)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Orchestrator: orch,
		Capture:      capture,
		Playback:     playback,
		Health:       health.New(checker),
		Metrics:      metrics,
	})
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		capture.Start(gctx)
		return nil
	})
	g.Go(func() error {
		playback.Start(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		slog.Info("shutdown signal received, stopping…")
		if err := orch.End(shutdownCtx); err != nil {
			slog.Warn("end active session", "err", err)
		}
		capture.Stop()
		playback.Stop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// openaiOptions maps the realtime config section onto client options.
func openaiOptions(cfg *config.Config) []openai.Option {
	var opts []openai.Option
	if cfg.Realtime.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Realtime.Model))
	}
	if cfg.Realtime.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Realtime.BaseURL))
	}
	return opts
}

// captureTap adapts the orchestrator's current local track tap to the
// analyzer source contract. Between sessions it reports not-ready.
type captureTap struct{ orch *session.Orchestrator }

func (c captureTap) Ready() bool {
	t := c.orch.LocalTrack()
	return t != nil && t.Tap().Ready()
}

func (c captureTap) SampleRate() int {
	if t := c.orch.LocalTrack(); t != nil {
		return t.Tap().SampleRate()
	}
	return 0
}

func (c captureTap) ReadRecent(dst []float64) int {
	if t := c.orch.LocalTrack(); t != nil {
		return t.Tap().ReadRecent(dst)
	}
	return 0
}

// playbackTap adapts the orchestrator's current remote sink the same way.
type playbackTap struct{ orch *session.Orchestrator }

func (p playbackTap) Ready() bool {
	s := p.orch.RemoteSink()
	return s != nil && s.Ready()
}

func (p playbackTap) SampleRate() int {
	if s := p.orch.RemoteSink(); s != nil {
		return s.SampleRate()
	}
	return 0
}

func (p playbackTap) ReadRecent(dst []float64) int {
	if s := p.orch.RemoteSink(); s != nil {
		return s.ReadRecent(dst)
	}
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
