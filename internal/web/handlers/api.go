package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/vface/internal/config"
	"github.com/kozaktomas/vface/internal/dispatch"
)

// Dispatcher serves API requests.
type Dispatcher interface {
	Handle(ctx context.Context, op dispatch.Operation, body []byte) *dispatch.Response
	Reject(ctx context.Context, op dispatch.Operation, cause error) *dispatch.Response
}

// APIHandler exposes the register, recognize and clear operations.
type APIHandler struct {
	dispatcher   Dispatcher
	maxBodyBytes int64
	limit        *limiter
	logger       *slog.Logger
}

// NewAPIHandler creates an APIHandler. Bodies larger than cfg.MaxBodyBytes
// are rejected and at most cfg.MaxConcurrent requests are served at once;
// zero or less disables either limit.
func NewAPIHandler(dispatcher Dispatcher, cfg config.ServerConfig, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		dispatcher:   dispatcher,
		maxBodyBytes: cfg.MaxBodyBytes,
		limit:        newLimiter(cfg),
		logger:       logger,
	}
}

// Register enrolls or updates an identity.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, dispatch.OpRegister)
}

// Recognize matches the faces of an image against a group.
func (h *APIHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, dispatch.OpRecognize)
}

// Clear drops the cached gallery of a group.
func (h *APIHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, dispatch.OpClear)
}

func (h *APIHandler) serve(w http.ResponseWriter, r *http.Request, op dispatch.Operation) {
	release, err := h.limit.acquire(r.Context())
	if err != nil {
		h.logger.Warn("request not admitted", "operation", op, "error", err)
		resp := h.dispatcher.Reject(r.Context(), op, err)
		respondJSON(w, resp.StatusCode, resp)
		return
	}
	defer release()

	var reader io.Reader = r.Body
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		h.logger.Warn("failed to read request body", "operation", op, "error", err)
		resp := h.dispatcher.Reject(r.Context(), op, err)
		respondJSON(w, resp.StatusCode, resp)
		return
	}

	resp := h.dispatcher.Handle(r.Context(), op, body)
	respondJSON(w, resp.StatusCode, resp)
}
