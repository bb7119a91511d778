package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/quocanhngo/eventspot/internal/model"
)

// Notification action identifiers
const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
)

// NotificationAction is a button on a system notification
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is a system notification shown by the agent
type Notification struct {
	Tag                string                 `json:"tag"`
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon"`
	Badge              string                 `json:"badge"`
	RequireInteraction bool                   `json:"requireInteraction"`
	Actions            []NotificationAction   `json:"actions,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
	ShownAt            time.Time              `json:"shownAt"`
}

// URL returns the click target carried in the notification data
func (n Notification) URL() string {
	if u, ok := n.Data["url"].(string); ok && u != "" {
		return u
	}
	return "/"
}

// BuildNotification renders a delivered push. The tag falls back to the
// category carried in data.type so alerts of one kind still coalesce.
func BuildNotification(p model.NotificationPayload) Notification {
	category := model.Category("")
	if t, ok := p.Data["type"].(string); ok {
		category = model.Category(t)
	}
	if p.Tag == "" {
		if t, ok := p.Data["tag"].(string); ok {
			p.Tag = t
		}
	}
	if p.URL == "" {
		// Payloads from the gateway carry the target only in data.url
		if u, ok := p.Data["url"].(string); ok && u != "" {
			p.URL = u
		} else {
			p.URL = "/"
		}
	}
	p = p.Shaped(category)

	data := make(map[string]interface{}, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	data["url"] = p.URL

	return Notification{
		Tag:                p.Tag,
		Title:              p.Title,
		Body:               p.Body,
		Icon:               p.Icon,
		Badge:              p.Badge,
		RequireInteraction: true,
		Actions: []NotificationAction{
			{Action: ActionOpen, Title: "Abrir"},
			{Action: ActionDismiss, Title: "Cerrar"},
		},
		Data: data,
	}
}

// Tray holds the visible notifications, at most one per tag
type Tray struct {
	mu    sync.Mutex
	items map[string]Notification
	now   func() time.Time
}

func NewTray() *Tray {
	return &Tray{
		items: make(map[string]Notification),
		now:   time.Now,
	}
}

// Show displays n, replacing any notification with the same tag. It
// reports whether an older one was replaced.
func (t *Tray) Show(n Notification) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.ShownAt = t.now()
	_, replaced := t.items[n.Tag]
	t.items[n.Tag] = n
	return replaced
}

// Get returns the visible notification for tag
func (t *Tray) Get(tag string) (Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.items[tag]
	return n, ok
}

// Close removes the notification for tag
func (t *Tray) Close(tag string) {
	t.mu.Lock()
	delete(t.items, tag)
	t.mu.Unlock()
}

// List returns the visible notifications, newest first
func (t *Tray) List() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Notification, 0, len(t.items))
	for _, n := range t.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShownAt.Equal(out[j].ShownAt) {
			return out[i].Tag < out[j].Tag
		}
		return out[i].ShownAt.After(out[j].ShownAt)
	})
	return out
}
