package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

const maxWebhookBody = 1 << 20

// Replier produces the reply text for one inbound message.
type Replier interface {
	GenerateReply(ctx context.Context, senderID, name, text string) string
}

// Deliverer sends reply text back to a WhatsApp user.
type Deliverer interface {
	Deliver(ctx context.Context, to, text string) error
}

// Handler serves the Meta webhook endpoints.
type Handler struct {
	verifyToken string
	replier     Replier
	deliverer   Deliverer
	logger      *logging.Logger
	metrics     *metrics.RelayMetrics
	budget      time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRelayBudget stops starting new replies for an envelope once d has
// elapsed since the request arrived. Messages left over are acknowledged and
// dropped. Zero relays every message.
func WithRelayBudget(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.budget = d
	}
}

func NewHandler(verifyToken string, replier Replier, deliverer Deliverer, logger *logging.Logger, m *metrics.RelayMetrics, opts ...HandlerOption) *Handler {
	if replier == nil {
		panic("whatsapp: replier cannot be nil")
	}
	if deliverer == nil {
		panic("whatsapp: deliverer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		verifyToken: verifyToken,
		replier:     replier,
		deliverer:   deliverer,
		logger:      logger.Component("whatsapp_webhook"),
		metrics:     m,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Verify answers Meta's GET subscription challenge.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "" || token == "" {
		h.logger.Info("webhook verification missing parameters")
		h.writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "Missing parameters"})
		return
	}
	if mode != "subscribe" || token != h.verifyToken {
		h.logger.Info("webhook verification failed", "mode", mode)
		h.writeJSON(w, http.StatusForbidden, statusResponse{Status: "error", Message: "Verification failed"})
		return
	}

	h.logger.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Event handles a POSTed webhook notification.
func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		h.observe("unknown", "error", start)
		h.writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: "Internal server error"})
		return
	}
	if len(body) > maxWebhookBody {
		h.logger.Warn("webhook body too large", "limit_bytes", maxWebhookBody)
		h.observe("unknown", "rejected", start)
		h.writeJSON(w, http.StatusRequestEntityTooLarge, statusResponse{Status: "error", Message: "Payload too large"})
		return
	}

	payload, err := ParsePayload(body)
	if err != nil {
		h.logger.Warn("failed to decode webhook JSON", "error", err)
		h.observe("malformed", "rejected", start)
		h.writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "Invalid JSON provided"})
		return
	}

	switch {
	case IsStatusEvent(payload):
		h.logger.Debug("received a WhatsApp status update")
		h.observe("status", "ok", start)
		h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})

	case IsMessageEvent(payload):
		msgs, err := ExtractMessages(payload)
		if err != nil {
			h.logger.Warn("message event without usable text", "error", err)
			h.observe("message", "rejected", start)
			h.writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "Invalid message structure"})
			return
		}
		// Generation outlives the request context; the replier's own deadline
		// bounds each reply.
		ctx := context.WithoutCancel(r.Context())
		for i, msg := range msgs {
			if i > 0 && h.budget > 0 && time.Since(start) >= h.budget {
				h.logger.Warn("webhook budget spent, dropping remaining messages",
					"dropped", len(msgs)-i,
					"budget", h.budget.String(),
				)
				for range msgs[i:] {
					h.metrics.ObserveDelivery("dropped")
				}
				break
			}
			h.relay(ctx, msg)
		}
		h.observe("message", "ok", start)
		h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})

	default:
		h.observe("unknown", "not_found", start)
		h.writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Message: "Not a WhatsApp API event"})
	}
}

func (h *Handler) relay(ctx context.Context, msg InboundMessage) {
	log := h.logger.With("sender_id", msg.SenderID, "message_id", msg.MessageID)

	reply := FormatText(h.replier.GenerateReply(ctx, msg.SenderID, msg.Name, msg.Text))
	if reply == "" {
		log.Warn("reply empty after formatting, nothing to deliver")
		h.metrics.ObserveDelivery("skipped")
		return
	}
	if err := h.deliverer.Deliver(ctx, msg.SenderID, reply); err != nil {
		status := "error"
		if errors.Is(err, ErrDelivery) {
			status = "failed"
		}
		log.Error("reply delivery failed", "error", err)
		h.metrics.ObserveDelivery(status)
		return
	}
	log.Info("reply delivered")
	h.metrics.ObserveDelivery("sent")
}

func (h *Handler) observe(kind, status string, start time.Time) {
	h.metrics.ObserveWebhook(kind, status)
	h.metrics.ObserveWebhookLatency(kind, time.Since(start).Seconds())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
