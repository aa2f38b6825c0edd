package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spelhyllan/spelhyllan/internal/thread"
)

// ThreadStore reads conversation metadata. Satisfied by *thread.Store.
type ThreadStore interface {
	Get(ctx context.Context, threadID string) (*thread.Thread, error)
}

type threadResponse struct {
	ThreadID     string    `json:"threadId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int32     `json:"messageCount"`
}

type threadHandler struct {
	threads ThreadStore
	logger  *slog.Logger
}

// getThread handles GET /chat/{threadId}: conversation metadata so a
// client can tell a live thread from a mistyped ID before posting to it.
func (h *threadHandler) getThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadId")
	if strings.TrimSpace(threadID) == "" {
		writeError(w, http.StatusBadRequest, "Thread ID is required")
		return
	}

	t, err := h.threads.Get(r.Context(), threadID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}
	if err != nil {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Error("thread lookup failed",
			"thread_id", threadID, "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, threadResponse{
		ThreadID:     t.ID,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		MessageCount: t.MessageCount,
	})
}
