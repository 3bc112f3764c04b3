package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-relay/internal/mux"
	"live-relay/internal/platform/config"
	"live-relay/internal/platform/logger"
	"live-relay/internal/platform/metrics"
	"live-relay/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 30 * time.Second
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	provider := mux.NewClient(cfg.MuxTokenID, cfg.MuxTokenSecret,
		mux.WithBaseURL(cfg.MuxAPIURL),
		mux.WithTimeout(cfg.ProviderTimeout),
	)
	store := relay.NewFileStore(cfg.StateFile)
	svc := relay.NewService(provider, store, log)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	err := svc.Initialize(ctx)
	cancel()
	if err != nil {
		log.Error("initialize live stream failed", "error", err, "state_file", store.Path())
		os.Exit(1)
	}

	met := metrics.New()
	b := relay.NewBroadcaster(log, met)
	h := relay.NewHandler(svc, b, log, met)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetConnectedClients(b.ClientCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r, cfg.WebhookUser, cfg.WebhookPassword)
	r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"stream_id", svc.StreamID(),
		"stream_key", svc.StreamKey(),
		"state_file", store.Path(),
		"provider_timeout", cfg.ProviderTimeout.String(),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
