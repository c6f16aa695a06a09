package http

import (
	"net/http"

	"github.com/fjod/storefront/internal/domain"
)

type NotificationSource interface {
	Drain(sessionID string) []domain.Notification
}

type NotificationHandler struct {
	source NotificationSource
}

func NewNotificationHandler(source NotificationSource) *NotificationHandler {
	return &NotificationHandler{source: source}
}

// List returns pending notifications once; a second call returns only newer ones.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.source.Drain(sessionIDFromContext(r.Context())))
}
