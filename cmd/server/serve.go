package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"stepwise/internal/api"
	"stepwise/internal/course"
	"stepwise/internal/coursegen"
	"stepwise/internal/llm"
	"stepwise/internal/speech"
	"stepwise/internal/telemetry"
	"stepwise/internal/web"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Options{
		Enabled: cfg.OTelEnabled,
		Stdout:  cfg.OTelStdout,
		Version: version,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	provider, err := llm.NewProvider(ctx, cfg.LLM, log)
	if err != nil {
		return err
	}
	courses := course.NewService(st, coursegen.New(provider), log)

	var narrator speech.Narrator
	if cfg.TTSEnabled {
		g, err := speech.NewGoogle(ctx)
		if err != nil {
			return err
		}
		defer g.Close()
		narrator = g
		log.Info("Successfully connected to Google TTS API.")
	}

	auth, err := authConfig(cfg, log)
	if err != nil {
		return err
	}
	pages, err := web.NewPages(courses, auth, log)
	if err != nil {
		return err
	}

	r := mux.NewRouter()
	api.NewApiHandler(courses, st, auth, narrator, log).Register(r)
	pages.Register(r)

	handler := api.RecoverMiddleware(log)(api.LoggingMiddleware(log)(r))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(handler, "stepwise"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", "addr", cfg.HTTPAddr, "provider", provider.ModelID(), "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
