package agent

import (
	"testing"
	"time"

	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/ws"
)

func TestBuildNotification(t *testing.T) {
	n := BuildNotification(model.NotificationPayload{
		Title: "Mensaje de Ana",
		Body:  "Hola",
		Data:  map[string]interface{}{"type": "chat_message", "url": "/chat/ana", "tag": "chat-ana"},
	})

	if n.Title != "Mensaje de Ana" || n.Body != "Hola" {
		t.Errorf("title/body = %q/%q", n.Title, n.Body)
	}
	if !n.RequireInteraction {
		t.Error("requireInteraction = false, want true")
	}
	if len(n.Actions) != 2 || n.Actions[0].Action != ActionOpen || n.Actions[1].Action != ActionDismiss {
		t.Errorf("actions = %+v", n.Actions)
	}
	if n.Tag != "chat-ana" {
		t.Errorf("tag = %q, want chat-ana", n.Tag)
	}
	if n.Icon != model.DefaultIcon || n.Badge != model.DefaultBadge {
		t.Errorf("icon/badge = %q/%q", n.Icon, n.Badge)
	}
	if n.URL() != "/chat/ana" {
		t.Errorf("url = %q", n.URL())
	}
}

func TestBuildNotificationDefaults(t *testing.T) {
	n := BuildNotification(model.NotificationPayload{Title: "t", Body: "b"})
	if n.Tag != "general" {
		t.Errorf("tag = %q, want general", n.Tag)
	}
	if n.URL() != "/" {
		t.Errorf("url = %q, want /", n.URL())
	}

	n = BuildNotification(model.NotificationPayload{Title: "t", Body: "b", Data: map[string]interface{}{"type": "event_reminder"}})
	if n.Tag != "reminder" {
		t.Errorf("tag = %q, want reminder", n.Tag)
	}
}

func TestResolveClick(t *testing.T) {
	chat := Notification{Tag: "chat-ana", Data: map[string]interface{}{"url": "/chat/ana"}}
	bare := Notification{Tag: "general"}
	sessions := []ws.Info{
		{ID: "s1", URL: "http://localhost:8081/events"},
		{ID: "s2", URL: "http://localhost:8081/chat/ana?tab=1"},
	}

	tests := []struct {
		name     string
		n        Notification
		choice   string
		sessions []ws.Info
		want     Action
	}{
		{"focus matching session", chat, ActionOpen, sessions, Focus{Tag: "chat-ana", SessionID: "s2", URL: "/chat/ana"}},
		{"body click behaves like open", chat, "", sessions, Focus{Tag: "chat-ana", SessionID: "s2", URL: "/chat/ana"}},
		{"open when no session matches", chat, ActionOpen, sessions[:1], Open{Tag: "chat-ana", URL: "/chat/ana"}},
		{"open when nothing is open", chat, "", nil, Open{Tag: "chat-ana", URL: "/chat/ana"}},
		{"dismiss never navigates", chat, ActionDismiss, sessions, Close{Tag: "chat-ana"}},
		{"root target matches any session", bare, "", sessions, Focus{Tag: "general", SessionID: "s1", URL: "/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveClick(Event{Kind: EventNotificationClick, Notification: tt.n, Choice: tt.choice, Sessions: tt.sessions})
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestTableResolve(t *testing.T) {
	table := DefaultTable()
	payload := model.NotificationPayload{Title: "t", Body: "b"}

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"install", Event{Kind: EventInstall, Version: "v2"}, "install"},
		{"install without version", Event{Kind: EventInstall}, "ignore"},
		{"activate", Event{Kind: EventActivate}, "activate"},
		{"skip waiting", Event{Kind: EventMessage, Control: model.ControlSkipWaiting}, "skip-waiting"},
		{"unknown control", Event{Kind: EventMessage, Control: "reload"}, "ignore"},
		{"background push", Event{Kind: EventPush, Payload: payload}, "show"},
		{"foreground push", Event{Kind: EventPush, Payload: payload, Foreground: true}, "forward"},
		{"unknown kind", Event{Kind: "sync"}, "ignore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Resolve(tt.event).Name(); got != tt.want {
				t.Errorf("action = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTrayCoalescesByTag(t *testing.T) {
	tray := NewTray()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tray.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	if tray.Show(Notification{Tag: "chat-ana", Body: "Hola"}) {
		t.Error("first show reported a replacement")
	}
	tray.Show(Notification{Tag: "reminder", Body: "Mañana"})
	if !tray.Show(Notification{Tag: "chat-ana", Body: "¿Vienes?"}) {
		t.Error("same tag did not replace")
	}

	list := tray.List()
	if len(list) != 2 {
		t.Fatalf("visible = %d, want 2", len(list))
	}
	if list[0].Tag != "chat-ana" || list[0].Body != "¿Vienes?" {
		t.Errorf("newest = %+v, want latest chat-ana", list[0])
	}

	tray.Close("chat-ana")
	if _, ok := tray.Get("chat-ana"); ok {
		t.Error("closed notification still visible")
	}
}
