package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/service"
)

// NotificationHandler exposes the dispatch pipeline to trigger services
type NotificationHandler struct {
	notificationService *service.NotificationService
}

func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// Dispatch godoc
// @Summary Dispatch a push notification
// @Description Sends one alert to a user's device if their preference for the category allows it. A disabled preference answers 200 with reason "skipped".
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.DispatchRequest true "Recipient, category and payload"
// @Success 200 {object} model.DispatchResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.DispatchResponse
// @Failure 500 {object} model.DispatchResponse
// @Router /notifications/dispatch [post]
func (h *NotificationHandler) Dispatch(c *gin.Context) {
	var req model.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	res, err := h.notificationService.Dispatch(c.Request.Context(), req.UserID, req.Type, req.Payload)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, model.DispatchResponse{DispatchResult: res})
	case errors.Is(err, service.ErrUnknownCategory):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
	case errors.Is(err, service.ErrRegistrationNotFound), errors.Is(err, service.ErrTokenNotFound):
		c.JSON(http.StatusNotFound, model.DispatchResponse{DispatchResult: res, Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, model.DispatchResponse{DispatchResult: res, Error: err.Error()})
	}
}
