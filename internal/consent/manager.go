// Package consent asks the user for notification permission, obtains a
// messaging token and keeps the server-side device registration in sync.
// Refusal and missing platform support degrade silently: the app keeps
// working without push.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/quocanhngo/eventspot/internal/model"
)

var (
	ErrUnsupported = errors.New("notifications are not supported")
	ErrDenied      = errors.New("notification permission denied")
	ErrNoIdentity  = errors.New("no signed-in user")
)

// State is the permission state seen by the application
type State int

const (
	StateUnsupported State = iota
	StateDefault
	StateGranted
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StateDefault:
		return "default"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	}
	return "unknown"
}

// Platform is the host that grants permission and mints messaging tokens
type Platform interface {
	Supported() bool
	Permission() State
	// RequestPermission blocks until the user answers or ctx ends
	RequestPermission(ctx context.Context) (State, error)
	// EnsureAgent makes sure the background process is registered and controlling
	EnsureAgent(ctx context.Context) error
	Token(ctx context.Context, publicKey string) (string, error)
}

// Registrar persists the device registration on the server
type Registrar interface {
	Register(ctx context.Context, userID, token string, prefs *model.Preferences) error
	UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) error
}

// Manager drives permission and token registration for the signed-in user
type Manager struct {
	platform  Platform
	registrar Registrar
	publicKey string

	mu     sync.Mutex
	userID string
	token  string
}

func NewManager(platform Platform, registrar Registrar, publicKey string) *Manager {
	return &Manager{
		platform:  platform,
		registrar: registrar,
		publicKey: publicKey,
	}
}

// State reports the current permission state
func (m *Manager) State() State {
	if !m.platform.Supported() {
		return StateUnsupported
	}
	return m.platform.Permission()
}

// UserID returns the user the token is registered for, or ""
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Token returns the last registered token
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Enable runs on an explicit user action. It requests permission if the
// user was never asked, then obtains a token and registers it for userID.
func (m *Manager) Enable(ctx context.Context, userID string, prefs *model.Preferences) (State, error) {
	if userID == "" {
		return m.State(), ErrNoIdentity
	}
	if !m.platform.Supported() {
		log.Println("⚠️  Notifications unsupported, continuing without push")
		return StateUnsupported, ErrUnsupported
	}

	state := m.platform.Permission()
	if state == StateDefault {
		var err error
		if state, err = m.platform.RequestPermission(ctx); err != nil {
			return StateDefault, fmt.Errorf("request permission: %w", err)
		}
	}
	if state != StateGranted {
		log.Printf("🔕 Notification permission %s for %s", state, userID)
		return state, ErrDenied
	}

	if err := m.register(ctx, userID, prefs); err != nil {
		return StateGranted, err
	}
	return StateGranted, nil
}

// OnIdentityChange refreshes the registration when a different user signs
// in with permission already granted. Signing out forgets the user.
func (m *Manager) OnIdentityChange(ctx context.Context, userID string) error {
	m.mu.Lock()
	same := userID == m.userID
	if !same {
		// The previous user's registration is no longer ours to update
		m.userID, m.token = "", ""
	}
	m.mu.Unlock()

	if userID == "" || same {
		return nil
	}
	if m.State() != StateGranted {
		return nil
	}
	return m.register(ctx, userID, nil)
}

func (m *Manager) register(ctx context.Context, userID string, prefs *model.Preferences) error {
	if err := m.platform.EnsureAgent(ctx); err != nil {
		return fmt.Errorf("background process: %w", err)
	}
	token, err := m.platform.Token(ctx, m.publicKey)
	if err != nil {
		return fmt.Errorf("messaging token: %w", err)
	}
	if err := m.registrar.Register(ctx, userID, token, prefs); err != nil {
		return fmt.Errorf("register token: %w", err)
	}

	m.mu.Lock()
	m.userID, m.token = userID, token
	m.mu.Unlock()
	log.Printf("✅ Messaging token registered for %s", userID)
	return nil
}

// UpdatePreferences changes the alert switches of the signed-in user
func (m *Manager) UpdatePreferences(ctx context.Context, prefs model.Preferences) error {
	m.mu.Lock()
	userID := m.userID
	m.mu.Unlock()
	if userID == "" {
		return ErrNoIdentity
	}
	return m.registrar.UpdatePreferences(ctx, userID, prefs)
}

// LocalNotification is what the foreground renders for a push that
// arrives while the app is open
type LocalNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Tag   string `json:"tag"`
	URL   string `json:"url"`
}

// OnForegroundMessage synthesizes the local notification for a push
// received in the foreground
func (m *Manager) OnForegroundMessage(p model.NotificationPayload) LocalNotification {
	category := model.Category("")
	if t, ok := p.Data["type"].(string); ok {
		category = model.Category(t)
	}
	if t, ok := p.Data["tag"].(string); ok && p.Tag == "" {
		p.Tag = t
	}
	p = p.Shaped(category)
	return LocalNotification{
		Title: p.Title,
		Body:  p.Body,
		Icon:  p.Icon,
		Tag:   p.Tag,
		URL:   p.URL,
	}
}
