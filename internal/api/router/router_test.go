package router

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-ai-relay/internal/channels/whatsapp"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

type echoReplier struct{ calls int }

func (e *echoReplier) GenerateReply(_ context.Context, _, _, text string) string {
	e.calls++
	return "echo: " + text
}

type noopDeliverer struct{ sent []string }

func (n *noopDeliverer) Deliver(_ context.Context, _, text string) error {
	n.sent = append(n.sent, text)
	return nil
}

const inbound = `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"contacts":[{"wa_id":"123","profile":{"name":"John"}}],"messages":[{"from":"123","id":"m1","type":"text","text":{"body":"Hello"}}]}}]}]}`

func newTestRouter(t *testing.T, appSecret string) (http.Handler, *echoReplier, *noopDeliverer) {
	t.Helper()

	logger := logging.NewWithWriter("error", &bytes.Buffer{})
	reg := prometheus.NewRegistry()
	m := metrics.NewRelayMetrics(reg)
	replier := &echoReplier{}
	deliverer := &noopDeliverer{}

	return New(&Config{
		Logger:          logger,
		WhatsAppHandler: whatsapp.NewHandler("verify", replier, deliverer, logger, m),
		AppSecret:       appSecret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}), replier, deliverer
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookVerification(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify&hub.challenge=42", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "42" {
		t.Fatalf("expected challenge echo, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestRouterWebhookRelayAndMetrics(t *testing.T) {
	router, replier, deliverer := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(inbound))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if replier.calls != 1 || len(deliverer.sent) != 1 || deliverer.sent[0] != "echo: Hello" {
		t.Fatalf("expected one relayed reply, got calls=%d sent=%v", replier.calls, deliverer.sent)
	}

	mreq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrr := httptest.NewRecorder()
	router.ServeHTTP(mrr, mreq)
	if !strings.Contains(mrr.Body.String(), `relay_webhook_events_total{kind="message",status="ok"} 1`) {
		t.Fatalf("expected webhook counter in metrics output, got:\n%s", mrr.Body.String())
	}
}

func TestRouterWebhookSignature(t *testing.T) {
	router, replier, _ := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(inbound))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned body, got %d", rr.Code)
	}

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(inbound))
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(inbound))
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for signed body, got %d", rr.Code)
	}
	if replier.calls != 1 {
		t.Fatalf("expected exactly one relay, got %d", replier.calls)
	}
}
