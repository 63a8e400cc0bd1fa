package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"stockpulse/internal/httputil"
	"stockpulse/internal/model"
	"stockpulse/internal/service"
	"stockpulse/internal/transport/http/middleware"
)

type NotificationHandler struct {
	notifService *service.NotificationService
}

func NewNotificationHandler(notifService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
	}
}

// List handles GET /notifications
// Returns recent notifications for the authenticated user, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	// Parse limit from query params
	limit := 20 // default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	notifications, err := h.notifService.List(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[ERROR] List notifications: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to get notifications")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, notifications)
}

// MarkRead handles PATCH /notifications/read
// Marks specific notifications as read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if len(req.NotificationIDs) == 0 {
		httputil.WriteBadRequest(w, "notification_ids is required")
		return
	}

	err := h.notifService.MarkAsRead(r.Context(), userID, req.NotificationIDs)
	if err != nil {
		log.Printf("[ERROR] Mark notifications read: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to mark notifications as read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Notifications marked as read",
	})
}

// MarkAllRead handles POST /notifications/read-all
// Marks all notifications as read for the authenticated user.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	err := h.notifService.MarkAllAsRead(r.Context(), userID)
	if err != nil {
		log.Printf("[ERROR] Mark all notifications read: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to mark all notifications as read")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "All notifications marked as read",
	})
}

// GetUnreadCount handles GET /notifications/unread-count
// Returns the count of unread notifications (for badge display).
func (h *NotificationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	count, err := h.notifService.GetUnreadCount(r.Context(), userID)
	if err != nil {
		log.Printf("[ERROR] Get unread count: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to get unread count")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"unread_count": count,
	})
}
