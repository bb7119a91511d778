package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/eventspot/internal/middleware"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/service"
)

// DeviceHandler handles the current user's device registration
type DeviceHandler struct {
	deviceService *service.DeviceService
}

func NewDeviceHandler(deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

// GetRegistration godoc
// @Summary Get device registration
// @Description Returns the messaging token and alert preferences of the current user, with defaults filled in
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.DeviceRegistration
// @Failure 404 {object} model.ErrorResponse
// @Router /devices/registration [get]
func (h *DeviceHandler) GetRegistration(c *gin.Context) {
	reg, err := h.deviceService.Get(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		respondRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

// UpsertRegistration godoc
// @Summary Register device token
// @Description Stores the messaging token of the current user. Preferences sent are merged, others keep their stored value.
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.UpsertRegistrationRequest true "Token and optional preferences"
// @Success 200 {object} model.DeviceRegistration
// @Failure 400 {object} model.ErrorResponse
// @Router /devices/registration [put]
func (h *DeviceHandler) UpsertRegistration(c *gin.Context) {
	var req model.UpsertRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	reg, err := h.deviceService.Register(c.Request.Context(), c.GetString(middleware.UserIDKey), req)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

// UpdatePreferences godoc
// @Summary Update alert preferences
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.UpdatePreferencesRequest true "Preference switches to change"
// @Success 200 {object} model.DeviceRegistration
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /devices/registration/preferences [patch]
func (h *DeviceHandler) UpdatePreferences(c *gin.Context) {
	var req model.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	reg, err := h.deviceService.UpdatePreferences(c.Request.Context(), c.GetString(middleware.UserIDKey), req.Preferences)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func respondRegistrationError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrRegistrationNotFound) {
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
}
