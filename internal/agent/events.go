// Package agent is the client-resident background process: it owns the
// cache lifecycle, renders delivered pushes and routes notification clicks
// to the foreground sessions it controls.
package agent

import (
	"strings"

	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/ws"
)

// EventKind identifies a background event
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventMessage           EventKind = "message"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
)

// Event is one input to the background process. Only the fields of its
// Kind are set. Fetch events never pass through here; the Router is the
// fetch handler.
type Event struct {
	Kind EventKind

	// install
	Version string

	// message
	Control string

	// push
	Payload    model.NotificationPayload
	Foreground bool

	// notificationclick
	Notification Notification
	Choice       string
	Sessions     []ws.Info
}

// Action is what the agent must do in response to an event
type Action interface {
	Name() string
}

type (
	// Install deploys a new cache version
	Install struct{ Version string }
	// Activate activates the waiting version if no session holds it
	Activate struct{}
	// SkipWaiting activates the waiting version immediately
	SkipWaiting struct{}
	// Show displays a system notification
	Show struct{ Notification Notification }
	// Forward hands a push to the open sessions
	Forward struct{ Payload model.NotificationPayload }
	// Close closes a notification without navigating
	Close struct{ Tag string }
	// Focus closes a notification and focuses a session showing URL
	Focus struct {
		Tag       string
		SessionID string
		URL       string
	}
	// Open closes a notification and opens a new session at URL
	Open struct {
		Tag string
		URL string
	}
	// Ignore is the answer to an event that needs nothing
	Ignore struct{ Reason string }
)

func (Install) Name() string     { return "install" }
func (Activate) Name() string    { return "activate" }
func (SkipWaiting) Name() string { return "skip-waiting" }
func (Show) Name() string        { return "show" }
func (Forward) Name() string     { return "forward" }
func (Close) Name() string       { return "close" }
func (Focus) Name() string       { return "focus" }
func (Open) Name() string        { return "open" }
func (Ignore) Name() string      { return "ignore" }

// Table maps each event kind to a pure function deciding the action
type Table map[EventKind]func(Event) Action

// DefaultTable is the agent's event table
func DefaultTable() Table {
	return Table{
		EventInstall:           OnInstall,
		EventActivate:          OnActivate,
		EventMessage:           OnMessage,
		EventPush:              OnPush,
		EventNotificationClick: ResolveClick,
	}
}

// Resolve returns the action for e
func (t Table) Resolve(e Event) Action {
	fn, ok := t[e.Kind]
	if !ok {
		return Ignore{Reason: "unhandled event " + string(e.Kind)}
	}
	return fn(e)
}

func OnInstall(e Event) Action {
	if e.Version == "" {
		return Ignore{Reason: "missing version"}
	}
	return Install{Version: e.Version}
}

func OnActivate(Event) Action {
	return Activate{}
}

// OnMessage handles control messages from the application
func OnMessage(e Event) Action {
	if e.Control == model.ControlSkipWaiting {
		return SkipWaiting{}
	}
	return Ignore{Reason: "unknown control message " + e.Control}
}

// OnPush renders a delivery as a notification. With a session in the
// foreground the page renders it instead.
func OnPush(e Event) Action {
	if e.Foreground {
		return Forward{Payload: e.Payload}
	}
	return Show{Notification: BuildNotification(e.Payload)}
}

// ResolveClick decides where a notification click lands. The target is
// data.url or "/". A session whose URL contains the target is focused,
// otherwise a new one is opened. dismiss closes without navigating.
func ResolveClick(e Event) Action {
	n := e.Notification
	if e.Choice == ActionDismiss {
		return Close{Tag: n.Tag}
	}

	target := n.URL()
	for _, s := range e.Sessions {
		if strings.Contains(s.URL, target) {
			return Focus{Tag: n.Tag, SessionID: s.ID, URL: target}
		}
	}
	return Open{Tag: n.Tag, URL: target}
}
