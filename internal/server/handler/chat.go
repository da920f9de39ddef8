package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

// maxChatBody caps the size of a chat request body.
const maxChatBody = 1 << 20

// ChatService defines what the chat handler requires from the service layer.
type ChatService interface {
	Chat(ctx context.Context, query string) (domain.ChatResponse, error)
}

// ChatHistory lists stored exchanges.
type ChatHistory interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.ChatRecord, error)
}

// ChatHandler serves the chat and chat history endpoints.
type ChatHandler struct {
	chat    ChatService
	history ChatHistory
	logger  *slog.Logger
}

// NewChatHandler creates a ChatHandler. history may be nil when chat
// persistence is disabled.
func NewChatHandler(chat ChatService, history ChatHistory, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chat:    chat,
		history: history,
		logger:  logger,
	}
}

// Chat answers a natural-language query.
// POST /api/v1/agent/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	if err := dec.Decode(&req); err != nil || dec.Decode(&struct{}{}) != io.EOF {
		writeError(w, http.StatusUnprocessableEntity, "request body must be a JSON object with a string field 'query'")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusUnprocessableEntity, "query must not be empty")
		return
	}

	resp, err := h.chat.Chat(r.Context(), req.Query)
	if err != nil {
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			writeError(w, http.StatusInternalServerError, genErr.Reason)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: chat failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, MsgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListHistory returns stored chat exchanges, newest first.
// GET /api/v1/agent/history?limit=50&offset=0&since=&until=
func (h *ChatHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "chat history is disabled")
		return
	}

	opts, err := pageOpts(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	records, err := h.history.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list chat history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Could not retrieve chat history.")
		return
	}
	if records == nil {
		records = []domain.ChatRecord{}
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: records})
}
