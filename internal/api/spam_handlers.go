package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/contentrank/internal/middleware"
	"github.com/onnwee/contentrank/internal/spam"
)

// SpamService evaluates submissions. *spam.Service implements it.
type SpamService interface {
	Check(ctx context.Context, req spam.Request) (*spam.Response, error)
	CheckBatch(ctx context.Context, reqs []spam.Request) (*spam.BatchResponse, error)
}

// SpamHandlers serves the spam check endpoints. Apart from validation
// failures they always answer 200; when a check cannot run the body is the
// conservative review verdict.
type SpamHandlers struct {
	service SpamService
	logger  *slog.Logger
}

// NewSpamHandlers creates the spam handlers.
func NewSpamHandlers(service SpamService, logger *slog.Logger) *SpamHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpamHandlers{service: service, logger: logger}
}

const conservativeMessage = "automated check unavailable, queued for manual review"

// BatchRequest is the body of POST /spam-check/batch.
type BatchRequest struct {
	Items []spam.Request `json:"items"`
}

// Check handles POST /spam-check.
func (h *SpamHandlers) Check(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	var req spam.Request
	if !decodeBody(w, r, &req) {
		return
	}
	fillOrigin(r, &req)

	resp, err := h.service.Check(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, spam.ErrInvalidRequest):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	default:
		h.logger.ErrorContext(ctx, "spam check failed, returning conservative verdict",
			"error", err,
			"request_id", req.RequestID)
		resp = spam.Conservative(conservativeMessage)
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

// CheckBatch handles POST /spam-check/batch.
func (h *SpamHandlers) CheckBatch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	var body BatchRequest
	if !decodeBody(w, r, &body) {
		return
	}
	for i := range body.Items {
		fillOrigin(r, &body.Items[i])
	}

	resp, err := h.service.CheckBatch(ctx, body.Items)
	if err != nil {
		if errors.Is(err, spam.ErrInvalidRequest) {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		h.logger.ErrorContext(ctx, "spam batch failed, returning conservative verdicts", "error", err, "items", len(body.Items))
		resp = conservativeBatch(len(body.Items))
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

func conservativeBatch(n int) *spam.BatchResponse {
	out := &spam.BatchResponse{Results: make([]spam.BatchResult, n)}
	out.Summary.Total = n
	out.Summary.Review = n
	for i := range out.Results {
		out.Results[i] = spam.BatchResult{Index: i, Response: spam.Conservative(conservativeMessage)}
	}
	return out
}

// fillOrigin tags the request with its request ID and, when the caller
// did not say, the client address and user agent of the HTTP request.
func fillOrigin(r *http.Request, req *spam.Request) {
	req.RequestID = middleware.GetRequestID(r.Context())
	if req.Context.IPAddress == "" {
		req.Context.IPAddress = middleware.ClientIP(r)
	}
	if req.Context.UserAgent == "" {
		req.Context.UserAgent = r.UserAgent()
	}
}
