package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/middleware"
	"github.com/onnwee/contentrank/internal/search"
)

// SearchService runs searches. *search.Service implements it.
type SearchService interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// SearchHandlers serves POST /search.
type SearchHandlers struct {
	service SearchService
	logger  *slog.Logger
}

// NewSearchHandlers creates the search handlers.
func NewSearchHandlers(service SearchService, logger *slog.Logger) *SearchHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandlers{service: service, logger: logger}
}

// searchFailure is the degraded body for failures after validation.
type searchFailure struct {
	ErrorResponse
	Query        string          `json:"query"`
	TotalResults int             `json:"total_results"`
	Results      []search.Result `json:"results"`
}

// Search handles POST /search.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	var req search.Request
	if !decodeBody(w, r, &req) {
		return
	}
	req.RequestID = middleware.GetRequestID(ctx)

	// An authenticated caller asking for personalization without naming a
	// user is personalized as themselves.
	if req.Options.Personalized {
		if sub := middleware.GetSubject(ctx); sub != "" {
			if req.UserContext == nil {
				req.UserContext = &content.UserContext{}
			}
			if req.UserContext.UserID == "" {
				req.UserContext.UserID = sub
			}
		}
	}

	resp, err := h.service.Search(ctx, req)
	if err == nil {
		writeJSON(w, ctx, http.StatusOK, resp)
		return
	}
	if errors.Is(err, search.ErrInvalidRequest) {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	status, code := http.StatusInternalServerError, ErrCodeInternal
	if errors.Is(err, content.ErrStoreUnavailable) {
		status, code = http.StatusServiceUnavailable, ErrCodeStoreUnavailable
	}
	h.logger.ErrorContext(ctx, "search request failed",
		"error", err,
		"request_id", req.RequestID,
		"trace_id", middleware.TraceID(r))
	middleware.SetErrorCode(ctx, code)
	writeJSON(w, ctx, status, searchFailure{
		ErrorResponse: ErrorResponse{Success: false, Error: "Search is temporarily unavailable", Code: code},
		Query:         req.Query,
		Results:       []search.Result{},
	})
}
