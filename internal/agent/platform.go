package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/quocanhngo/eventspot/internal/consent"
	"github.com/quocanhngo/eventspot/internal/model"
)

var (
	ErrNoSession = errors.New("no foreground session to ask")
	ErrNoToken   = errors.New("session returned no messaging token")
)

// permissionQuery is the payload of a permission_request event
type permissionQuery struct {
	PublicKey string `json:"publicKey,omitempty"`
}

// SessionPlatform asks a foreground session for permission and tokens over
// its websocket. It is the consent platform of the agent.
type SessionPlatform struct {
	sessions  Sessions
	lifecycle *Lifecycle

	mu      sync.Mutex
	state   consent.State
	waiters map[string]chan model.PermissionResultEvent
}

func NewSessionPlatform(sessions Sessions, lifecycle *Lifecycle) *SessionPlatform {
	return &SessionPlatform{
		sessions:  sessions,
		lifecycle: lifecycle,
		state:     consent.StateDefault,
		waiters:   make(map[string]chan model.PermissionResultEvent),
	}
}

// Supported reports whether a page is connected to answer prompts
func (p *SessionPlatform) Supported() bool {
	return p.sessions.Count() > 0
}

func (p *SessionPlatform) Permission() consent.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RequestPermission prompts the first session and blocks until it answers
func (p *SessionPlatform) RequestPermission(ctx context.Context) (consent.State, error) {
	res, err := p.ask(ctx, permissionQuery{})
	if err != nil {
		return consent.StateDefault, err
	}
	return p.record(res), nil
}

// EnsureAgent requires an active cache version so the agent controls the pages
func (p *SessionPlatform) EnsureAgent(context.Context) error {
	if p.lifecycle.Active() == "" {
		return ErrNoActiveVersion
	}
	return nil
}

// Token asks a session for a messaging token bound to publicKey
func (p *SessionPlatform) Token(ctx context.Context, publicKey string) (string, error) {
	res, err := p.ask(ctx, permissionQuery{PublicKey: publicKey})
	if err != nil {
		return "", err
	}
	if p.record(res) != consent.StateGranted {
		return "", consent.ErrDenied
	}
	if res.Token == "" {
		return "", ErrNoToken
	}
	return res.Token, nil
}

// Resolve delivers a session's answer to the request id
func (p *SessionPlatform) Resolve(id string, res model.PermissionResultEvent) {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	delete(p.waiters, id)
	p.mu.Unlock()
	if ok {
		ch <- res
	}
}

func (p *SessionPlatform) ask(ctx context.Context, q permissionQuery) (model.PermissionResultEvent, error) {
	sessions := p.sessions.Sessions()
	if len(sessions) == 0 {
		return model.PermissionResultEvent{}, ErrNoSession
	}

	id := uuid.NewString()
	ch := make(chan model.PermissionResultEvent, 1)
	p.mu.Lock()
	p.waiters[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiters, id)
		p.mu.Unlock()
	}()

	if !p.sessions.Send(sessions[0].ID, &model.WSEvent{Type: model.WSEventPermissionRequest, ID: id, Payload: q}) {
		return model.PermissionResultEvent{}, fmt.Errorf("%w: %s left", ErrNoSession, sessions[0].ID)
	}

	// No timeout of its own: the user may never answer
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return model.PermissionResultEvent{}, ctx.Err()
	}
}

func (p *SessionPlatform) record(res model.PermissionResultEvent) consent.State {
	state := consent.StateDefault
	switch res.Permission {
	case "granted":
		state = consent.StateGranted
	case "denied":
		state = consent.StateDenied
	}
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	return state
}
