package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func echoBody(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}

func TestMetaSignature(t *testing.T) {
	const secret = "app_secret"
	const body = `{"object":"whatsapp_business_account"}`
	quiet := logging.NewWithWriter("error", &bytes.Buffer{})

	tests := []struct {
		name      string
		secret    string
		method    string
		signature string
		wantCode  int
	}{
		{"valid signature", secret, http.MethodPost, sign(secret, body), http.StatusOK},
		{"bad signature", secret, http.MethodPost, sign("other", body), http.StatusUnauthorized},
		{"missing signature", secret, http.MethodPost, "", http.StatusUnauthorized},
		{"get passes through", secret, http.MethodGet, "", http.StatusOK},
		{"disabled without secret", "", http.MethodPost, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := MetaSignature(tt.secret, quiet)(echoBody(t))
			req := httptest.NewRequest(tt.method, "/webhook", strings.NewReader(body))
			if tt.signature != "" {
				req.Header.Set("X-Hub-Signature-256", tt.signature)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if tt.wantCode == http.StatusOK && tt.method == http.MethodPost && w.Body.String() != body {
				t.Fatalf("expected body to be replayed downstream, got %q", w.Body.String())
			}
		})
	}
}

func TestMetaSignatureRejectsOversizedBody(t *testing.T) {
	const secret = "app_secret"
	body := strings.Repeat("a", maxSignedBody+1)
	quiet := logging.NewWithWriter("error", &bytes.Buffer{})

	called := false
	handler := MetaSignature(secret, quiet)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(secret, body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Payload too large") {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
	if called {
		t.Fatal("oversized body must not reach the handler")
	}
}

func TestMetaSignatureAcceptsBodyAtLimit(t *testing.T) {
	const secret = "app_secret"
	body := strings.Repeat("a", maxSignedBody)
	quiet := logging.NewWithWriter("error", &bytes.Buffer{})

	handler := MetaSignature(secret, quiet)(echoBody(t))
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(secret, body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.Len() != maxSignedBody {
		t.Fatalf("expected full body replayed, got %d bytes", w.Body.Len())
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-42"`) {
		t.Fatalf("expected request id in log, got %s", out)
	}
	if !strings.Contains(out, `"status":418`) {
		t.Fatalf("expected status in log, got %s", out)
	}
}
