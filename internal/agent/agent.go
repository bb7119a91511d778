package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/quocanhngo/eventspot/internal/consent"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/ws"
)

// Sessions is the set of foreground sessions the agent controls
type Sessions interface {
	Sessions() []ws.Info
	Send(id string, event *model.WSEvent) bool
	Broadcast(event *model.WSEvent) int
	Count() int
}

// Agent performs the actions its event table decides
type Agent struct {
	table     Table
	lifecycle *Lifecycle
	tray      *Tray
	sessions  Sessions
	consent   *consent.Manager
	platform  *SessionPlatform

	mu      sync.Mutex
	pending []string
}

// New creates an agent. Sessions must be attached with AttachSessions
// before events are handled.
func New(lifecycle *Lifecycle, tray *Tray) *Agent {
	a := &Agent{
		table:     DefaultTable(),
		lifecycle: lifecycle,
		tray:      tray,
	}
	lifecycle.OnClaim(a.claim)
	return a
}

// AttachSessions wires the session set and the permission platform on top of it
func (a *Agent) AttachSessions(s Sessions) {
	a.sessions = s
	a.platform = NewSessionPlatform(s, a.lifecycle)
	a.lifecycle.OnSessions(s.Count)
}

// UseConsent wires the consent manager that renders foreground pushes
func (a *Agent) UseConsent(m *consent.Manager) {
	a.consent = m
}

func (a *Agent) Lifecycle() *Lifecycle { return a.lifecycle }

func (a *Agent) Tray() *Tray { return a.tray }

func (a *Agent) Platform() *SessionPlatform { return a.platform }

func (a *Agent) Consent() *consent.Manager { return a.consent }

// Handle resolves e through the table and performs the resulting action
func (a *Agent) Handle(ctx context.Context, e Event) (Action, error) {
	if e.Kind == EventPush {
		e.Foreground = a.sessions.Count() > 0
	}
	act := a.table.Resolve(e)
	return act, a.perform(ctx, act)
}

// Click handles a click on the notification with tag. An unknown tag is
// ignored.
func (a *Agent) Click(ctx context.Context, tag, choice string) (Action, error) {
	n, ok := a.tray.Get(tag)
	if !ok {
		return Ignore{Reason: "no notification " + tag}, nil
	}
	return a.Handle(ctx, Event{
		Kind:         EventNotificationClick,
		Notification: n,
		Choice:       choice,
		Sessions:     a.sessions.Sessions(),
	})
}

func (a *Agent) perform(ctx context.Context, act Action) error {
	switch act := act.(type) {
	case Install:
		_, err := a.lifecycle.Deploy(ctx, act.Version)
		return err
	case Activate:
		_, err := a.lifecycle.ActivateWaiting(ctx)
		return err
	case SkipWaiting:
		return a.lifecycle.SkipWaiting(ctx)
	case Show:
		if a.tray.Show(act.Notification) {
			log.Printf("🔔 Notification %s replaced", act.Notification.Tag)
		} else {
			log.Printf("🔔 Notification %s shown", act.Notification.Tag)
		}
	case Forward:
		n := a.sessions.Broadcast(&model.WSEvent{Type: model.WSEventPush, Payload: act.Payload})
		log.Printf("📨 Push forwarded to %d session(s)", n)
		if a.consent != nil {
			local := a.consent.OnForegroundMessage(act.Payload)
			p := act.Payload
			p.Title, p.Body, p.Icon, p.Tag, p.URL = local.Title, local.Body, local.Icon, local.Tag, local.URL
			a.tray.Show(BuildNotification(p))
		}
	case Close:
		a.tray.Close(act.Tag)
	case Focus:
		a.tray.Close(act.Tag)
		if !a.sessions.Send(act.SessionID, &model.WSEvent{Type: model.WSEventFocus, Payload: act.URL}) {
			// The session went away between snapshot and send
			a.open(act.URL)
		}
	case Open:
		a.tray.Close(act.Tag)
		a.open(act.URL)
	case Ignore:
		log.Printf("⚠️  Agent ignored event: %s", act.Reason)
	default:
		return fmt.Errorf("unknown action %T", act)
	}
	return nil
}

// open queues url for the next session that connects
func (a *Agent) open(url string) {
	a.mu.Lock()
	a.pending = append(a.pending, url)
	a.mu.Unlock()
	log.Printf("🪟 Opening a new session at %s", url)
}

// Pending returns the URLs waiting for a new session
func (a *Agent) Pending() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.pending...)
}

func (a *Agent) nextPending() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		return "", false
	}
	url := a.pending[0]
	a.pending = a.pending[1:]
	return url, true
}

// claim takes control of the open sessions after an activation
func (a *Agent) claim(version string) {
	if a.sessions == nil {
		return
	}
	n := a.sessions.Broadcast(&model.WSEvent{Type: model.WSEventClaim, Payload: version})
	if n > 0 {
		log.Printf("📡 Claimed %d session(s) for %s", n, version)
	}
}

// OnSessionEvent handles an event sent by a foreground session
func (a *Agent) OnSessionEvent(s *ws.Session, event model.WSEvent) {
	ctx := context.Background()
	switch event.Type {
	case model.WSEventHello:
		var hello model.HelloEvent
		if err := decode(event.Payload, &hello); err == nil && hello.URL != "" {
			s.SetURL(hello.URL)
		}
		if url, ok := a.nextPending(); ok {
			a.sessions.Send(s.ID, &model.WSEvent{Type: model.WSEventNavigate, Payload: url})
			s.SetURL(url)
		}
	case model.WSEventNavigated:
		if url, ok := event.Payload.(string); ok {
			s.SetURL(url)
		}
	case model.WSEventControl:
		var msg model.ControlMessage
		if err := decode(event.Payload, &msg); err != nil {
			log.Printf("⚠️  Bad control message from %s: %v", s.ID, err)
			return
		}
		if _, err := a.Handle(ctx, Event{Kind: EventMessage, Control: msg.Type}); err != nil {
			log.Printf("❌ Control %s failed: %v", msg.Type, err)
		}
	case model.WSEventPermissionResult:
		var res model.PermissionResultEvent
		if err := decode(event.Payload, &res); err != nil {
			log.Printf("⚠️  Bad permission result from %s: %v", s.ID, err)
			return
		}
		if a.platform != nil {
			a.platform.Resolve(event.ID, res)
		}
	default:
		log.Printf("⚠️  Unknown session event %q", event.Type)
	}
}

// OnSessionCount runs after every session change. When the last session
// closes a waiting version activates.
func (a *Agent) OnSessionCount(n int) {
	if n > 0 {
		return
	}
	if _, err := a.Handle(context.Background(), Event{Kind: EventActivate}); err != nil {
		log.Printf("❌ Activation after sessions closed failed: %v", err)
	}
}

// decode converts a generic websocket payload into dst
func decode(payload interface{}, dst interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
