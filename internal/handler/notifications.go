package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

const (
	defaultNotificationCount = 20
	maxNotificationCount     = 100
	streamBlock              = 15 * time.Second
)

func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	count, _, err := queryInt(r.URL.Query(), "count")
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	switch {
	case count <= 0:
		count = defaultNotificationCount
	case count > maxNotificationCount:
		count = maxNotificationCount
	}

	notifications, err := h.feed.Latest(r.Context(), count)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, notifications)
}

// StreamNotifications pushes new notifications as server-sent events until the client
// goes away. A reconnecting client resumes after its Last-Event-ID.
func (h *Handler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Warn("cannot clear write deadline for event stream", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("event stream not supported", "error", err)
		return
	}

	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = "$"
	}

	ctx := r.Context()
	for {
		notifications, next, err := h.feed.Read(ctx, lastID, streamBlock)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("failed to read notification stream", "error", err)
			return
		}
		lastID = next

		if len(notifications) == 0 {
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		for _, n := range notifications {
			if err := writeEvent(w, n); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, data)
	return err
}
