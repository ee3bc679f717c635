package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-ai-relay/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-ai-relay/internal/api/router"
	"github.com/wolfman30/whatsapp-ai-relay/internal/app/bootstrap"
	"github.com/wolfman30/whatsapp-ai-relay/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/whatsapp-ai-relay/internal/config"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.ConversationBackend,
		"session_store", cfg.SessionStore,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AppSecret == "" {
		logger.Warn("APP_SECRET not set; webhook signatures will not be verified")
	}

	ctx := context.Background()
	relayMetrics := metrics.NewRelayMetrics(prometheus.DefaultRegisterer)

	relay, err := bootstrap.BuildRelay(ctx, cfg, mainconfig.AWSLoader(cfg), relayMetrics, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}
	defer relay.Close()

	graph := whatsapp.NewClient(whatsapp.ClientConfig{
		AccessToken:   cfg.AccessToken,
		PhoneNumberID: cfg.PhoneNumberID,
		APIVersion:    cfg.GraphAPIVersion,
		BaseURL:       cfg.GraphAPIBaseURL,
		Timeout:       cfg.DeliveryTimeout,
	})

	r := router.New(&router.Config{
		Logger:          logger,
		WhatsAppHandler: whatsapp.NewHandler(cfg.VerifyToken, relay.Orchestrator, graph, logger, relayMetrics,
			whatsapp.WithRelayBudget(cfg.WebhookBudget()),
		),
		AppSecret:       cfg.AppSecret,
		MetricsHandler:  promhttp.Handler(),
	})

	// The last reply may start just before the budget runs out and then take
	// a full reply plus delivery.
	writeTimeout := 2*cfg.WebhookBudget() + 15*time.Second
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server exited")
}
