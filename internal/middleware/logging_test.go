package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogging_Fields(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		wantLevel string
		wantCode  bool
	}{
		{"success", http.StatusOK, "", "INFO", false},
		{"client error with code", http.StatusBadRequest, "validation_error", "WARN", true},
		{"server error", http.StatusServiceUnavailable, "store_unavailable", "ERROR", true},
		{"code ignored on success", http.StatusOK, "validation_error", "INFO", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := RequestID(Logging(captureLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code != "" {
					SetErrorCode(r.Context(), tt.code)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})))

			req := httptest.NewRequest(http.MethodPost, "/search", nil)
			req.Header.Set(RequestIDHeader, "req-1")
			h.ServeHTTP(httptest.NewRecorder(), req)

			entry := decodeLogLine(t, &buf)
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["status"] != float64(tt.status) || entry["path"] != "/search" || entry["size"] != float64(4) {
				t.Errorf("entry = %v", entry)
			}
			if entry["request_id"] != "req-1" {
				t.Errorf("request_id = %v", entry["request_id"])
			}
			_, hasCode := entry["error_code"]
			if hasCode != tt.wantCode {
				t.Errorf("error_code present = %v, want %v", hasCode, tt.wantCode)
			}
		})
	}
}

func TestLogging_Subject(t *testing.T) {
	var buf bytes.Buffer
	h := Logging(captureLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/trending", nil)
	req = req.WithContext(SetSubject(req.Context(), "user-9"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if entry := decodeLogLine(t, &buf); entry["subject"] != "user-9" {
		t.Errorf("subject = %v", entry["subject"])
	}
}

func TestErrorCode_OutsideLogging(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if GetErrorCode(req.Context()) != "" {
		t.Error("empty context should have no code")
	}
	ctx := SetErrorCode(req.Context(), "internal_error")
	if GetErrorCode(ctx) != "internal_error" {
		t.Errorf("GetErrorCode() = %q", GetErrorCode(ctx))
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"propagated", "abc-123", true},
		{"generated", "", false},
		{"oversized replaced", strings.Repeat("x", maxRequestIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("context %q, header %q", seen, rec.Header().Get(RequestIDHeader))
			}
			if (seen == tt.incoming) != tt.keep {
				t.Errorf("id = %q, incoming %q", seen, tt.incoming)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	if _, ok := NewLogger("production").Handler().(*slog.JSONHandler); !ok {
		t.Error("production logger should emit JSON")
	}
	if _, ok := NewLogger("development").Handler().(*slog.TextHandler); !ok {
		t.Error("development logger should emit text")
	}
}
