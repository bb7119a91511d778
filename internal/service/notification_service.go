package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/repository"
	"github.com/quocanhngo/eventspot/pkg/notification"
)

var (
	ErrRegistrationNotFound = errors.New("device registration not found")
	ErrTokenNotFound        = errors.New("messaging token not found")
	ErrGateway              = errors.New("push gateway failure")
	ErrUnknownCategory      = errors.New("unknown notification category")
)

// RegistrationFinder loads the device registration of a recipient
type RegistrationFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.DeviceRegistration, error)
}

// NotificationService gates, resolves and delivers push alerts. Every call
// is a single sequential attempt: preference check, token resolution,
// gateway send.
type NotificationService struct {
	registrations RegistrationFinder
	gateway       notification.Gateway
}

func NewNotificationService(registrations RegistrationFinder, gateway notification.Gateway) *NotificationService {
	return &NotificationService{
		registrations: registrations,
		gateway:       gateway,
	}
}

// Dispatch sends payload to userID if the user's preference for category
// allows it. A disabled preference is a successful skip. The returned
// error, when set, wraps one of ErrRegistrationNotFound, ErrTokenNotFound,
// ErrGateway or ErrUnknownCategory and matches the result's reason.
func (s *NotificationService) Dispatch(ctx context.Context, userID string, category model.Category, payload model.NotificationPayload) (model.DispatchResult, error) {
	if !category.Valid() {
		return model.DispatchResult{Success: false}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	reg, err := s.registrations.FindByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DispatchResult{Success: false, Reason: model.ReasonNotFound}, ErrRegistrationNotFound
	}
	if err != nil {
		return model.DispatchResult{Success: false}, fmt.Errorf("load registration: %w", err)
	}

	if !reg.Preferences.Enabled(category) {
		log.Printf("🔕 Push %s to %s skipped by preference", category, userID)
		return model.DispatchResult{Success: true, Reason: model.ReasonSkipped}, nil
	}

	if reg.Token == "" {
		return model.DispatchResult{Success: false, Reason: model.ReasonNotFound}, ErrTokenNotFound
	}

	res, err := s.gateway.Send(ctx, buildMessage(reg.Token, category, payload))
	if err != nil {
		log.Printf("❌ Push %s to %s failed: %v", category, userID, err)
		return model.DispatchResult{Success: false, Reason: model.ReasonGatewayFailure}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if res.FailureCount > 0 {
		log.Printf("❌ Push %s to %s rejected by provider (%d failure)", category, userID, res.FailureCount)
		return model.DispatchResult{Success: false, Reason: model.ReasonGatewayFailure}, fmt.Errorf("%w: provider reported %d failure(s)", ErrGateway, res.FailureCount)
	}

	log.Printf("📨 Push %s delivered to %s", category, userID)
	return model.DispatchResult{Success: true}, nil
}

// buildMessage shapes a payload into the provider message. The click
// target and tag travel in the data map too so the background handler can
// route clicks without the notification block.
func buildMessage(token string, category model.Category, payload model.NotificationPayload) notification.Message {
	p := payload.Shaped(category)

	data := notification.StringData(p.Data)
	data["type"] = category.String()
	data["url"] = p.URL
	data["tag"] = p.Tag

	return notification.Message{
		Token:       token,
		Title:       p.Title,
		Body:        p.Body,
		Icon:        p.Icon,
		Badge:       p.Badge,
		Tag:         p.Tag,
		ClickAction: p.URL,
		Data:        data,
	}
}
