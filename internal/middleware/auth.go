package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/contentrank/internal/auth"
)

// TokenVerifier validates bearer tokens. *auth.Verifier implements it.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// OptionalAuth identifies callers that present a bearer token. Requests
// without an Authorization header pass through anonymously; a header that
// is present but invalid is rejected with 401. The token subject becomes
// the identity used for personalization.
func OptionalAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "auth_failed", "Authorization header must use the Bearer scheme")
				return
			}
			claims, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "Token has expired"
				}
				logger.WarnContext(r.Context(), "rejected bearer token",
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
					"error", err)
				writeError(w, http.StatusUnauthorized, "auth_failed", msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetSubject(r.Context(), claims.Subject)))
		})
	}
}

// writeError writes the API error envelope for failures raised before a
// handler runs.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}{false, message, code})
}
