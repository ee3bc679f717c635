package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/whatsapp-ai-relay/internal/channels/whatsapp"
	httpmiddleware "github.com/wolfman30/whatsapp-ai-relay/internal/http/middleware"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	WhatsAppHandler *whatsapp.Handler
	AppSecret       string
	MetricsHandler  http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WhatsAppHandler != nil {
		r.Route("/webhook", func(wh chi.Router) {
			wh.Use(httpmiddleware.MetaSignature(cfg.AppSecret, cfg.Logger))
			wh.Get("/", cfg.WhatsAppHandler.Verify)
			wh.Post("/", cfg.WhatsAppHandler.Event)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
