// Command parley runs the discussion service: the HTTP API, the badger
// store, and the OpenRouter client behind it.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/orchestrator"
	"github.com/parleyhq/parley/pkg/slogx"
	"github.com/parleyhq/parley/provider/openrouter"
	"github.com/parleyhq/parley/server"
	"github.com/parleyhq/parley/store"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelDebug}),
	))
}

func main() {
	if err := run(); err != nil {
		slog.Error("parley exited", slogx.Error(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfg.OpenRouterAPIKey == "" {
		slog.Warn("PARLEY_OPENROUTER_API_KEY is not set, upstream calls will fail")
	}

	st, err := store.Open(cfg.DataDir, slog.Default())
	if err != nil {
		return err
	}
	defer st.Close()

	client := openrouter.New(
		openrouter.WithBaseURL(cfg.OpenRouterBaseURL),
		openrouter.WithAPIKey(cfg.OpenRouterAPIKey),
		openrouter.WithReferer(cfg.HTTPReferer),
		openrouter.WithTitle(cfg.AppTitle),
	)
	catalog := openrouter.NewCatalog(client, cfg.ModelCacheTTL)
	orch := orchestrator.New(client, st, slog.Default())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(st, orch, client, catalog, slog.Default()).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("parley listening", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
