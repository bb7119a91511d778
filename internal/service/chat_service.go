package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/task"
)

// previewLength caps the message text shown in a push body
const previewLength = 120

const (
	defaultHistory = 50
	maxHistory     = 200
)

// MessageStore persists chat messages
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	ListBetween(ctx context.Context, a, b string, limit int) ([]model.Message, error)
}

// Dispatcher delivers one push alert
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, category model.Category, payload model.NotificationPayload) (model.DispatchResult, error)
}

// ChatService handles chat business logic. Chat is the action that
// triggers pushes; the push never decides whether the send succeeded.
type ChatService struct {
	messages   MessageStore
	dispatcher Dispatcher
	tasks      *task.Runner
}

func NewChatService(messages MessageStore, dispatcher Dispatcher, tasks *task.Runner) *ChatService {
	return &ChatService{
		messages:   messages,
		dispatcher: dispatcher,
		tasks:      tasks,
	}
}

// SendMessage stores the message and then notifies the recipient in the
// background. Once the message is stored the call succeeds regardless of
// what happens to the push.
func (s *ChatService) SendMessage(ctx context.Context, senderID, senderName string, req model.SendMessageRequest) (*model.Message, error) {
	if req.RecipientID == senderID {
		return nil, errors.New("cannot send a message to yourself")
	}

	msg := &model.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		SenderName:  senderName,
		RecipientID: req.RecipientID,
		EventID:     req.EventID,
		Content:     req.Content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, errors.New("failed to send message")
	}

	payload := chatPayload(msg)
	s.tasks.Go("chat push "+msg.ID.String(), func(ctx context.Context) error {
		res, err := s.dispatcher.Dispatch(ctx, msg.RecipientID, model.CategoryChatMessage, payload)
		if err != nil {
			return fmt.Errorf("dispatch to %s: %w", msg.RecipientID, err)
		}
		if !res.Success {
			return fmt.Errorf("dispatch to %s: %s", msg.RecipientID, res.Reason)
		}
		return nil
	})

	return msg, nil
}

// History returns the latest messages exchanged with another user, newest first
func (s *ChatService) History(ctx context.Context, userID, otherID string, limit int) ([]model.Message, error) {
	switch {
	case limit <= 0:
		limit = defaultHistory
	case limit > maxHistory:
		limit = maxHistory
	}
	return s.messages.ListBetween(ctx, userID, otherID, limit)
}

func chatPayload(msg *model.Message) model.NotificationPayload {
	name := msg.SenderName
	if name == "" {
		name = "alguien"
	}
	body := []rune(msg.Content)
	if len(body) > previewLength {
		body = append(body[:previewLength-1], '…')
	}
	url := "/chat/" + msg.SenderID
	return model.NotificationPayload{
		Title: "Mensaje de " + name,
		Body:  string(body),
		Tag:   "chat-" + msg.SenderID,
		URL:   url,
		Data: map[string]interface{}{
			"url":       url,
			"messageId": msg.ID.String(),
			"senderId":  msg.SenderID,
			"eventId":   msg.EventID,
		},
	}
}
