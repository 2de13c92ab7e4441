package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dijon/internal/llm"
	"dijon/internal/models"
	"dijon/internal/store"
)

// Completer is the upstream completion port; nil means no credential was
// configured and chat requests fail with a configuration error.
type Completer interface {
	Complete(ctx context.Context, history []models.Message, userMessage string) (string, error)
}

type Handler struct {
	store   store.Store
	llm     Completer
	logger  *zap.Logger
	timeout time.Duration
}

func NewHandler(st store.Store, completer Completer, timeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		store:   st,
		llm:     completer,
		logger:  logger,
		timeout: timeout,
	}
}

type ChatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type HistoryResponse struct {
	UserID   string           `json:"userId"`
	Messages []models.Message `json:"messages"`
}

type okResponse struct {
	OK        bool   `json:"ok"`
	Timestamp string `json:"timestamp,omitempty"`
}

type errorResponse struct {
	Error             string `json:"error"`
	Detail            string `json:"detail,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// HandleChat runs one relay turn: validate, append the user message, call
// the upstream under the configured timeout, append the reply, respond.
// The user message stays persisted even when the upstream call fails.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "userId and message are required", "")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	message := strings.TrimSpace(req.Message)
	if userID == "" || message == "" {
		h.writeError(w, http.StatusBadRequest, "userId and message are required", "")
		return
	}

	if h.llm == nil {
		h.logger.Error("chat request received but no upstream credential is configured")
		h.writeError(w, http.StatusInternalServerError, "assistant unavailable",
			"The assistant is not configured on this server.")
		return
	}

	history, err := h.store.History(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err), zap.String("userId", userID))
		h.writeError(w, http.StatusInternalServerError, "internal server error", "Please try again.")
		return
	}

	userMsg := models.Message{Role: models.RoleUser, Content: message, CreatedAt: time.Now().UTC()}
	if err := h.store.Append(r.Context(), userID, userMsg); err != nil {
		h.logger.Error("failed to save user message", zap.Error(err), zap.String("userId", userID))
		h.writeError(w, http.StatusInternalServerError, "internal server error", "Please try again.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reply, err := h.llm.Complete(ctx, history, message)
	if err != nil {
		h.respondUpstreamError(w, err, userID)
		return
	}

	assistantMsg := models.Message{Role: models.RoleAssistant, Content: reply, CreatedAt: time.Now().UTC()}
	if err := h.store.Append(r.Context(), userID, assistantMsg); err != nil {
		h.logger.Error("failed to save assistant message", zap.Error(err), zap.String("userId", userID))
		h.writeError(w, http.StatusInternalServerError, "internal server error", "Please try again.")
		return
	}

	h.writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

func (h *Handler) respondUpstreamError(w http.ResponseWriter, err error, userID string) {
	var upstreamErr *llm.UpstreamError
	switch {
	case errors.Is(err, llm.ErrTimeout):
		h.logger.Warn("upstream timed out", zap.String("userId", userID))
		h.writeError(w, http.StatusGatewayTimeout, "upstream timeout",
			"The assistant took too long to respond. Please try again.")
	case errors.As(err, &upstreamErr):
		h.logger.Error("upstream request failed", zap.Error(err), zap.String("userId", userID))
		h.writeError(w, http.StatusBadGateway, "upstream error",
			"The assistant could not be reached. Please try again.")
	default:
		h.logger.Error("chat request failed", zap.Error(err), zap.String("userId", userID))
		h.writeError(w, http.StatusInternalServerError, "internal server error", "Please try again.")
	}
}

// HandleHistory serves GET (read back the conversation) and DELETE (clear
// it) keyed by the userId query parameter.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "userId is required", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		messages, err := h.store.History(r.Context(), userID)
		if err != nil {
			h.logger.Error("failed to load history", zap.Error(err), zap.String("userId", userID))
			h.writeError(w, http.StatusInternalServerError, "internal server error", "Please try again.")
			return
		}
		h.writeJSON(w, http.StatusOK, HistoryResponse{UserID: userID, Messages: messages})

	case http.MethodDelete:
		if err := h.store.Clear(r.Context(), userID); err != nil {
			h.logger.Error("failed to clear history", zap.Error(err), zap.String("userId", userID))
			h.writeError(w, http.StatusInternalServerError, "internal server error", "Please try again.")
			return
		}
		h.writeJSON(w, http.StatusOK, okResponse{OK: true})

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, okResponse{
		OK:        true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg, detail string) {
	h.writeJSON(w, status, errorResponse{Error: msg, Detail: detail})
}
