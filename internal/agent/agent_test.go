package agent

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/quocanhngo/eventspot/internal/consent"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/ws"
)

type fakeSessions struct {
	mu        sync.Mutex
	open      []ws.Info
	sent      map[string][]model.WSEvent
	broadcast []model.WSEvent
	onSend    func(id string, event *model.WSEvent)
}

func newFakeSessions(open ...ws.Info) *fakeSessions {
	return &fakeSessions{open: open, sent: map[string][]model.WSEvent{}}
}

func (f *fakeSessions) Sessions() []ws.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ws.Info(nil), f.open...)
}

func (f *fakeSessions) Send(id string, event *model.WSEvent) bool {
	f.mu.Lock()
	found := false
	for _, s := range f.open {
		if s.ID == id {
			found = true
		}
	}
	if found {
		f.sent[id] = append(f.sent[id], *event)
	}
	hook := f.onSend
	f.mu.Unlock()
	if found && hook != nil {
		hook(id, event)
	}
	return found
}

func (f *fakeSessions) Broadcast(event *model.WSEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, *event)
	return len(f.open)
}

func (f *fakeSessions) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}

func (f *fakeSessions) events(id string) []model.WSEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[id]
}

func newAgent(t *testing.T, sessions *fakeSessions) *Agent {
	t.Helper()
	l, _, _, _ := newLifecycle()
	a := New(l, NewTray())
	a.AttachSessions(sessions)
	return a
}

var chatPush = model.NotificationPayload{
	Title: "Mensaje de Ana",
	Body:  "Hola",
	Data:  map[string]interface{}{"type": "chat_message", "url": "/chat/ana", "tag": "chat-ana"},
}

func TestPushThenClickFocusesSession(t *testing.T) {
	sessions := newFakeSessions()
	a := newAgent(t, sessions)
	ctx := context.Background()

	act, err := a.Handle(ctx, Event{Kind: EventPush, Payload: chatPush})
	if err != nil || act.Name() != "show" {
		t.Fatalf("push = %v, %v; want show", act, err)
	}
	if _, ok := a.Tray().Get("chat-ana"); !ok {
		t.Fatal("notification not shown")
	}

	// The page opens after the alert was shown
	sessions.mu.Lock()
	sessions.open = []ws.Info{{ID: "s1", URL: "http://localhost:8081/chat/ana"}}
	sessions.mu.Unlock()

	act, err = a.Click(ctx, "chat-ana", ActionOpen)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if want := (Focus{Tag: "chat-ana", SessionID: "s1", URL: "/chat/ana"}); act != want {
		t.Errorf("action = %#v, want %#v", act, want)
	}
	if _, ok := a.Tray().Get("chat-ana"); ok {
		t.Error("clicked notification still visible")
	}
	got := sessions.events("s1")
	if len(got) != 1 || got[0].Type != model.WSEventFocus {
		t.Errorf("session events = %+v, want one focus", got)
	}
}

func TestClickOpensAndDismisses(t *testing.T) {
	sessions := newFakeSessions()
	a := newAgent(t, sessions)
	ctx := context.Background()

	a.Handle(ctx, Event{Kind: EventPush, Payload: chatPush})
	act, _ := a.Click(ctx, "chat-ana", "")
	if act.Name() != "open" {
		t.Fatalf("action = %s, want open", act.Name())
	}
	if got := a.Pending(); !reflect.DeepEqual(got, []string{"/chat/ana"}) {
		t.Errorf("pending = %v", got)
	}

	// The next session to say hello is sent to the pending target
	s := ws.NewSession(nil, nil, "")
	sessions.mu.Lock()
	sessions.open = []ws.Info{{ID: s.ID}}
	sessions.mu.Unlock()
	a.OnSessionEvent(s, model.WSEvent{Type: model.WSEventHello, Payload: map[string]interface{}{"url": "/"}})
	evs := sessions.events(s.ID)
	if len(evs) != 1 || evs[0].Type != model.WSEventNavigate || evs[0].Payload != "/chat/ana" {
		t.Errorf("hello reply = %+v", evs)
	}
	if s.URL() != "/chat/ana" {
		t.Errorf("session url = %q", s.URL())
	}
	if len(a.Pending()) != 0 {
		t.Error("pending not consumed")
	}

	a.Handle(ctx, Event{Kind: EventPush, Payload: chatPush})
	act, _ = a.Click(ctx, "chat-ana", ActionDismiss)
	if act.Name() != "close" {
		t.Errorf("dismiss action = %s", act.Name())
	}
	if len(a.Pending()) != 0 || len(sessions.events(s.ID)) != 1 {
		t.Error("dismiss navigated")
	}

	act, _ = a.Click(ctx, "unknown", ActionOpen)
	if act.Name() != "ignore" {
		t.Errorf("unknown tag action = %s", act.Name())
	}
}

func TestForegroundPushGoesToSessions(t *testing.T) {
	sessions := newFakeSessions(ws.Info{ID: "s1", URL: "/events"})
	a := newAgent(t, sessions)
	a.UseConsent(consent.NewManager(a.Platform(), nil, ""))

	act, err := a.Handle(context.Background(), Event{Kind: EventPush, Payload: chatPush})
	if err != nil || act.Name() != "forward" {
		t.Fatalf("push = %v, %v; want forward", act, err)
	}
	if len(sessions.broadcast) != 1 || sessions.broadcast[0].Type != model.WSEventPush {
		t.Errorf("broadcast = %+v", sessions.broadcast)
	}
	n, ok := a.Tray().Get("chat-ana")
	if !ok {
		t.Fatal("no local notification")
	}
	background := BuildNotification(chatPush)
	if !n.RequireInteraction || !reflect.DeepEqual(n.Actions, background.Actions) {
		t.Errorf("local notification = %+v, want actions %+v and require interaction", n, background.Actions)
	}
	if n.Title != background.Title || n.URL() != background.URL() {
		t.Errorf("local notification %q -> %s, background %q -> %s", n.Title, n.URL(), background.Title, background.URL())
	}
}

func TestControlMessageSkipsWaiting(t *testing.T) {
	sessions := newFakeSessions(ws.Info{ID: "s1"})
	a := newAgent(t, sessions)
	ctx := context.Background()

	if _, err := a.Handle(ctx, Event{Kind: EventInstall, Version: "v1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Handle(ctx, Event{Kind: EventInstall, Version: "v2"}); err != nil {
		t.Fatal(err)
	}
	if a.Lifecycle().Active() != "v1" {
		t.Fatalf("active = %q, want v1 while a session is open", a.Lifecycle().Active())
	}

	s := ws.NewSession(nil, nil, "/")
	a.OnSessionEvent(s, model.WSEvent{Type: model.WSEventControl, Payload: map[string]interface{}{"type": "skip-waiting"}})
	if a.Lifecycle().Active() != "v2" {
		t.Errorf("active = %q, want v2", a.Lifecycle().Active())
	}

	var claims []string
	for _, ev := range sessions.broadcast {
		if ev.Type == model.WSEventClaim {
			claims = append(claims, ev.Payload.(string))
		}
	}
	if !reflect.DeepEqual(claims, []string{"v1", "v2"}) {
		t.Errorf("claims = %v", claims)
	}
}

func TestLastSessionClosingActivates(t *testing.T) {
	sessions := newFakeSessions(ws.Info{ID: "s1"})
	a := newAgent(t, sessions)
	ctx := context.Background()
	a.Handle(ctx, Event{Kind: EventInstall, Version: "v1"})
	a.Handle(ctx, Event{Kind: EventInstall, Version: "v2"})

	sessions.mu.Lock()
	sessions.open = nil
	sessions.mu.Unlock()
	a.OnSessionCount(0)

	if a.Lifecycle().Active() != "v2" {
		t.Errorf("active = %q, want v2", a.Lifecycle().Active())
	}
}

func TestSessionPlatformPermission(t *testing.T) {
	sessions := newFakeSessions(ws.Info{ID: "s1", URL: "/"})
	a := newAgent(t, sessions)
	p := a.Platform()
	sessions.onSend = func(id string, event *model.WSEvent) {
		if event.Type != model.WSEventPermissionRequest {
			return
		}
		go a.OnSessionEvent(ws.NewSession(nil, nil, "/"), model.WSEvent{
			Type:    model.WSEventPermissionResult,
			ID:      event.ID,
			Payload: map[string]interface{}{"permission": "granted", "token": "tok1"},
		})
	}

	if !p.Supported() {
		t.Fatal("platform unsupported with a session open")
	}
	if err := p.EnsureAgent(context.Background()); !errors.Is(err, ErrNoActiveVersion) {
		t.Errorf("EnsureAgent = %v, want ErrNoActiveVersion", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := p.RequestPermission(ctx)
	if err != nil || state != consent.StateGranted {
		t.Fatalf("RequestPermission = %s, %v", state, err)
	}
	token, err := p.Token(ctx, "vapid")
	if err != nil || token != "tok1" {
		t.Errorf("Token = %q, %v", token, err)
	}
	if p.Permission() != consent.StateGranted {
		t.Errorf("permission = %s", p.Permission())
	}
}

func TestSessionPlatformWaitsForAnswer(t *testing.T) {
	sessions := newFakeSessions(ws.Info{ID: "s1"})
	a := newAgent(t, sessions)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := a.Platform().RequestPermission(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	empty := newAgent(t, newFakeSessions())
	if _, err := empty.Platform().RequestPermission(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}
