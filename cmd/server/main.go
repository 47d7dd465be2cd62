package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/lanhub/internal/adapters/http"
	sig "github.com/dkeye/lanhub/internal/adapters/signal"
	"github.com/dkeye/lanhub/internal/app"
	"github.com/dkeye/lanhub/internal/app/orch"
	"github.com/dkeye/lanhub/internal/app/relay"
	"github.com/dkeye/lanhub/internal/config"
	"github.com/dkeye/lanhub/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("parse flags")
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.NewMetrics(nil)
	reg := app.NewRegistry()

	o := &orch.Orchestrator{
		Registry:      reg,
		Presenter:     app.NewPresenter(),
		Files:         app.NewFileStore(cfg.MaxFileSize, cfg.FileStoreLimit),
		History:       app.NewHistory(cfg.ChatHistory),
		Policy:        app.SimplePolicy{},
		Metrics:       m,
		MaxChatLength: cfg.MaxChatLength,
	}
	ctl := sig.NewSignalController(o, cfg, m)

	// Listeners are opened up front: failing to bind any of them is fatal.
	ln, err := net.Listen("tcp", cfg.TCPAddr())
	if err != nil {
		return err
	}
	relays, err := relay.ListenAll(cfg.VideoAddr(), cfg.AudioAddr(), reg, m, cfg.MaxDatagramSize)
	if err != nil {
		_ = ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Serve(gctx, ln) })
	g.Go(func() error { return relays.Run(gctx) })

	if cfg.HTTPEnabled {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr(),
			Handler:           router.SetupRouter(gctx, cfg, o, ctl, m, nil),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("HTTP API started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("HTTP server forced to shutdown")
			}
			return nil
		})
	}

	log.Info().
		Str("tcp", cfg.TCPAddr()).
		Str("video", cfg.VideoAddr()).
		Str("audio", cfg.AudioAddr()).
		Msg("LAN hub started")

	<-gctx.Done()
	log.Info().Msg("Shutting down")
	return g.Wait()
}
