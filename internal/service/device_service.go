package service

import (
	"context"
	"errors"
	"strings"

	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/repository"
)

// RegistrationStore persists device registrations with merge semantics
type RegistrationStore interface {
	RegistrationFinder
	Upsert(ctx context.Context, userID, token string, prefs model.Preferences) error
	UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) error
}

// DeviceService manages the single device registration of each user
type DeviceService struct {
	store RegistrationStore
}

func NewDeviceService(store RegistrationStore) *DeviceService {
	return &DeviceService{store: store}
}

// Register records token for userID, merging any preferences given. It is
// called on first permission grant and on every token refresh.
func (s *DeviceService) Register(ctx context.Context, userID string, req model.UpsertRegistrationRequest) (*model.DeviceRegistration, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, errors.New("token is required")
	}

	var prefs model.Preferences
	if req.Preferences != nil {
		prefs = *req.Preferences
	}
	if err := s.store.Upsert(ctx, userID, token, prefs); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Get returns the registration with category defaults filled in
func (s *DeviceService) Get(ctx context.Context, userID string) (*model.DeviceRegistration, error) {
	reg, err := s.store.FindByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	reg.Preferences = reg.ResolvedPreferences()
	return reg, nil
}

// UpdatePreferences merges the given switches into the registration
func (s *DeviceService) UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) (*model.DeviceRegistration, error) {
	err := s.store.UpdatePreferences(ctx, userID, prefs)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}
