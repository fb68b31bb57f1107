// Device token HTTP handlers.
//
// This file exposes push token registration endpoints:
//   - POST   /devices          (register or reassign a token)
//   - GET    /devices          (list own tokens)
//   - DELETE /devices/{token}  (unregister)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/services"
)

// RegisterDeviceRequest is the JSON payload for registering a push token.
type RegisterDeviceRequest struct {
	// Token is the opaque platform push token.
	Token string `json:"token" binding:"required,min=1" example:"fcm-9b1a7c..."`
	// Platform is ios or android.
	Platform string `json:"platform" binding:"required" example:"android"`
}

// ListDevicesResponse contains the caller's registered push tokens.
type ListDevicesResponse struct {
	Devices []domain.DeviceToken `json:"devices"`
}

// RegisterDevice godoc
// @ID          registerDevice
// @Summary     Register a push token
// @Description Registers the device token for the caller; a token already held by another user is reassigned.
// @Tags        Devices
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       body       body    handlers.RegisterDeviceRequest  true  "Token payload"
//
// @Success     201  {object} domain.DeviceToken
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /devices [post]
func (h *Handlers) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token and platform required")
		return
	}

	dt, err := h.deviceSvc.Register(c.Request.Context(), userID(c), strings.TrimSpace(req.Token), strings.ToLower(strings.TrimSpace(req.Platform)))
	if err != nil {
		if errors.Is(err, services.ErrEmptyToken) || errors.Is(err, services.ErrInvalidPlatform) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, dt)
}

// ListDevices godoc
// @ID          listDevices
// @Summary     List registered push tokens
// @Tags        Devices
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
//
// @Success     200  {object} handlers.ListDevicesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /devices [get]
func (h *Handlers) ListDevices(c *gin.Context) {
	items, err := h.deviceSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListDevicesResponse{Devices: items})
}

// UnregisterDevice godoc
// @ID          unregisterDevice
// @Summary     Unregister a push token
// @Description Removes the token if it belongs to the caller.
// @Tags        Devices
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       token      path    string  true  "Push token"
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Token not found"
// @Router      /devices/{token} [delete]
func (h *Handlers) UnregisterDevice(c *gin.Context) {
	token := c.Param("token")
	if err := h.deviceSvc.Unregister(c.Request.Context(), userID(c), token); err != nil {
		if errors.Is(err, services.ErrDeviceNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "device token not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
