package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/eventspot/internal/middleware"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/service"
)

// ChatHandler handles chat-related HTTP endpoints
type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessage godoc
// @Summary Send a chat message
// @Description Stores the message and notifies the recipient in the background. The push outcome never changes the response.
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.SendMessageRequest true "Send message request"
// @Success 201 {object} model.Message
// @Failure 400 {object} model.ErrorResponse
// @Router /messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), c.GetString(middleware.UserIDKey), c.GetString(middleware.UserNameKey), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// GetMessages godoc
// @Summary Get messages exchanged with a user
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param with query string true "Other user ID"
// @Param limit query int false "Number of messages to return (default: 50)"
// @Success 200 {array} model.Message
// @Failure 400 {object} model.ErrorResponse
// @Router /messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	other := c.Query("with")
	if other == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Query parameter 'with' is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.chatService.History(c.Request.Context(), c.GetString(middleware.UserIDKey), other, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}
