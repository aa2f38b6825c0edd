package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spelhyllan/spelhyllan/internal/agent"
)

// Client-facing error strings. The rate-limit text doubles as a retry
// hint for humans reading it in the chat widget.
const (
	msgInternalError = "Internal server error"
	msgRateLimited   = "Service temporarily unavailable due to rate limits. Please try again in a minute."
	msgBadRequest    = "Message is required"
)

// maxMessageBytes bounds the request body. A chat message has no
// business being larger.
const maxMessageBytes = 1 << 20

// ChatAgent answers one user message on a thread. Satisfied by
// *agent.Agent.
type ChatAgent interface {
	Send(ctx context.Context, threadID, message string) (string, error)
}

type chatRequest struct {
	Message string `json:"message"`
}

type newChatResponse struct {
	ThreadID string `json:"threadId"`
	Response string `json:"response"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type chatHandler struct {
	agent  ChatAgent
	logger *slog.Logger
	now    func() time.Time
}

// startChat handles POST /chat: mint a thread ID, run the first turn,
// return both. The ID is the current unix-millis, which is unique
// enough for a demo shop and sorts chronologically for free.
func (h *chatHandler) startChat(w http.ResponseWriter, r *http.Request) {
	message, ok := h.readMessage(w, r)
	if !ok {
		return
	}

	threadID := strconv.FormatInt(h.now().UnixMilli(), 10)
	response, err := h.agent.Send(r.Context(), threadID, message)
	if err != nil {
		h.writeAgentError(w, r, threadID, err)
		return
	}
	writeJSON(w, http.StatusOK, newChatResponse{ThreadID: threadID, Response: response})
}

// continueChat handles POST /chat/{threadId}.
func (h *chatHandler) continueChat(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadId")
	if strings.TrimSpace(threadID) == "" {
		writeError(w, http.StatusBadRequest, "Thread ID is required")
		return
	}

	message, ok := h.readMessage(w, r)
	if !ok {
		return
	}

	response, err := h.agent.Send(r.Context(), threadID, message)
	if err != nil {
		h.writeAgentError(w, r, threadID, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: response})
}

func (h *chatHandler) readMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return "", false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return "", false
	}
	return req.Message, true
}

func (h *chatHandler) writeAgentError(w http.ResponseWriter, r *http.Request, threadID string, err error) {
	requestID, _ := requestIDFromContext(r.Context())
	h.logger.Error("chat turn failed",
		"thread_id", threadID,
		"request_id", requestID,
		"error", err,
	)

	switch {
	case errors.Is(err, agent.ErrRateLimited):
		writeError(w, http.StatusServiceUnavailable, msgRateLimited)
	case errors.Is(err, context.Canceled):
		// The client is gone; any status works.
		writeError(w, statusClientClosedRequest, "Request canceled")
	default:
		// Auth and agent failures both read as a broken service from
		// the outside. Details stay in the log.
		writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}

// statusClientClosedRequest is nginx's non-standard 499.
const statusClientClosedRequest = 499
