package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"stockpulse/internal/httputil"
	"stockpulse/internal/model"
	"stockpulse/internal/service"
	"stockpulse/internal/transport/http/middleware"
)

type DeviceTokenHandler struct {
	tokenService *service.DeviceTokenService
}

func NewDeviceTokenHandler(tokenService *service.DeviceTokenService) *DeviceTokenHandler {
	return &DeviceTokenHandler{
		tokenService: tokenService,
	}
}

// Register handles POST /devices/token
// Registers a device token for push notifications. Re-registering an
// existing token moves it to the authenticated user.
func (h *DeviceTokenHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	err := h.tokenService.RegisterToken(r.Context(), userID, req.Token, req.Platform)
	if err != nil {
		log.Printf("[ERROR] Register device token: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to register device token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Device token registered",
	})
}

// Unregister handles DELETE /devices/token
// Deactivates a device token (e.g., on logout). Idempotent.
func (h *DeviceTokenHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.UnregisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	err := h.tokenService.UnregisterToken(r.Context(), userID, req.Token)
	if err != nil {
		log.Printf("[ERROR] Unregister device token: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to unregister device token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Device token removed",
	})
}
