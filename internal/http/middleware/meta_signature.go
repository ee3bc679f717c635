package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/wolfman30/whatsapp-ai-relay/internal/channels/whatsapp"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

const maxSignedBody = 1 << 20

// MetaSignature rejects POST requests whose X-Hub-Signature-256 header does
// not match the body. An empty app secret disables the check.
func MetaSignature(appSecret string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		if appSecret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			_ = r.Body.Close()
			if len(body) > maxSignedBody {
				logger.Warn("webhook body too large to verify", "path", r.URL.Path, "limit_bytes", maxSignedBody)
				writeError(w, http.StatusRequestEntityTooLarge, "Payload too large")
				return
			}

			if !whatsapp.VerifySignature(appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
				logger.Warn("webhook signature verification failed", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "Invalid signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": message})
}
