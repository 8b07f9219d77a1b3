package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/drover-ai/drover/internal/logger"
)

// SignatureHeader carries the sender's HMAC of the raw body.
const SignatureHeader = "X-Hub-Signature-256"

// maxWebhookBody bounds webhook payloads to 10 MiB.
const maxWebhookBody = 10 << 20

// WebhookHMAC authenticates webhook deliveries: HMAC-SHA256 of the raw body
// compared in constant time against the shared secret. Mismatch answers 401
// with no body detail. The body is re-buffered for the handler.
func WebhookHMAC(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !validSignature(secret, r.Header.Get(SignatureHeader), body) {
				logger.Warn("webhook signature mismatch", "remote_addr", r.RemoteAddr)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validSignature checks "sha256=<hex>" against the body's HMAC.
func validSignature(secret, header string, body []byte) bool {
	digest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	provided, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
