package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/middleware"
	"github.com/onnwee/contentrank/internal/trending"
)

// Stream defaults.
const (
	DefaultStreamInterval = 10 * time.Second
	MinStreamInterval     = time.Second
	streamWriteTimeout    = 5 * time.Second
)

// TrendingService computes trending lists. *trending.Service implements it.
type TrendingService interface {
	Trending(ctx context.Context, req trending.Request) (*trending.Response, error)
}

// TrendingHandlers serves POST /trending and the GET /trending/stream
// websocket.
type TrendingHandlers struct {
	service  TrendingService
	logger   *slog.Logger
	metrics  *middleware.Metrics // optional
	interval time.Duration
	upgrader websocket.Upgrader
}

// TrendingHandlersConfig configures TrendingHandlers.
type TrendingHandlersConfig struct {
	Service        TrendingService
	Logger         *slog.Logger
	Metrics        *middleware.Metrics
	StreamInterval time.Duration
	Origins        *middleware.OriginPolicy // websocket origin check; nil allows all
}

// NewTrendingHandlers creates the trending handlers.
func NewTrendingHandlers(cfg TrendingHandlersConfig) *TrendingHandlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = DefaultStreamInterval
	}
	origins := cfg.Origins
	if origins == nil {
		origins = middleware.NewOriginPolicy(nil)
	}
	return &TrendingHandlers{
		service:  cfg.Service,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		interval: cfg.StreamInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     origins.Allowed,
		},
	}
}

// trendingFailure is the degraded body for failures after validation.
type trendingFailure struct {
	ErrorResponse
	TimeWindow string           `json:"timeWindow"`
	Trending   []trending.Entry `json:"trending"`
}

// Trending handles POST /trending.
func (h *TrendingHandlers) Trending(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req trending.Request
	if !decodeBody(w, r, &req) {
		return
	}
	h.personalize(r, &req)

	resp, err := h.service.Trending(r.Context(), req)
	if err != nil {
		h.writeFailure(w, r, req.TimeWindow, err)
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, resp)
}

// personalize fills the user ID from the bearer token when the caller asks
// for personalization without naming a user.
func (h *TrendingHandlers) personalize(r *http.Request, req *trending.Request) {
	if req.Options.Personalized && req.Options.UserID == "" {
		req.Options.UserID = middleware.GetSubject(r.Context())
	}
}

func (h *TrendingHandlers) writeFailure(w http.ResponseWriter, r *http.Request, window string, err error) {
	ctx := r.Context()
	if errors.Is(err, trending.ErrInvalidRequest) {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	status, code, msg := http.StatusInternalServerError, ErrCodeInternal, "Trending is temporarily unavailable"
	if errors.Is(err, content.ErrStoreUnavailable) {
		status, code = http.StatusServiceUnavailable, ErrCodeStoreUnavailable
	}
	h.logger.ErrorContext(ctx, "trending request failed",
		"error", err,
		"time_window", window,
		"request_id", middleware.GetRequestID(ctx),
		"trace_id", middleware.TraceID(r))
	middleware.SetErrorCode(ctx, code)
	writeJSON(w, ctx, status, trendingFailure{
		ErrorResponse: ErrorResponse{Success: false, Error: msg, Code: code},
		TimeWindow:    window,
		Trending:      []trending.Entry{},
	})
}

// Stream handles GET /trending/stream?timeWindow=daily&limit=10&interval=5s.
// After the upgrade the current list is sent immediately, then every
// interval until the client disconnects. Failed refreshes are skipped.
func (h *TrendingHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	req := trending.Request{
		TimeWindow: q.Get("timeWindow"),
		Category:   q.Get("category"),
		Options: trending.Options{
			IncludeRising: q.Get("include_rising") == "true",
			IncludeViral:  q.Get("include_viral") == "true",
		},
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	interval := h.interval
	if v := q.Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < MinStreamInterval {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "interval must be a duration of at least 1s")
			return
		}
		interval = d
	}

	// Validate before upgrading so errors still get an HTTP status.
	first, err := h.service.Trending(ctx, req)
	if err != nil {
		h.writeFailure(w, r, req.TimeWindow, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to upgrade websocket connection",
			"error", err,
			"time_window", req.TimeWindow)
		return
	}
	requestID := middleware.GetRequestID(ctx)
	h.logger.InfoContext(ctx, "trending stream opened",
		"time_window", req.TimeWindow,
		"interval", interval,
		"request_id", requestID)
	if h.metrics != nil {
		h.metrics.WebsocketOpened("trending")
	}
	defer func() {
		conn.Close()
		if h.metrics != nil {
			h.metrics.WebsocketClosed("trending")
		}
		h.logger.InfoContext(ctx, "trending stream closed",
			"time_window", req.TimeWindow,
			"request_id", requestID)
	}()

	// Clients never send data; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Time{}) // clear the server's ReadTimeout
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.WarnContext(ctx, "trending stream closed unexpectedly", "error", err)
				}
				return
			}
		}
	}()

	if !h.send(ctx, conn, first) {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := h.service.Trending(ctx, req)
			if err != nil {
				h.logger.WarnContext(ctx, "trending stream refresh failed", "error", err)
				continue
			}
			if !h.send(ctx, conn, resp) {
				return
			}
		}
	}
}

func (h *TrendingHandlers) send(ctx context.Context, conn *websocket.Conn, resp *trending.Response) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(resp); err != nil {
		h.logger.WarnContext(ctx, "failed to write trending snapshot", "error", err)
		return false
	}
	return true
}
