package model

import (
	"fmt"
	"strings"
)

// Category is the closed set of alert kinds a user can opt in or out of.
type Category string

const (
	CategoryEventReminder Category = "event_reminder"
	CategoryChatMessage   Category = "chat_message"
	CategoryNewEvent      Category = "new_event"
	CategoryEventUpdate   Category = "event_update"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryEventReminder,
	CategoryChatMessage,
	CategoryNewEvent,
	CategoryEventUpdate,
}

// ParseCategory returns the category for raw and whether it is known.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.TrimSpace(raw))
	return c, c.Valid()
}

func (c Category) Valid() bool {
	switch c {
	case CategoryEventReminder, CategoryChatMessage, CategoryNewEvent, CategoryEventUpdate:
		return true
	}
	return false
}

// DefaultEnabled is the preference applied when the user never chose one.
// New-event announcements are opt-in, everything else is opt-out.
func (c Category) DefaultEnabled() bool {
	return c != CategoryNewEvent && c.Valid()
}

// TagPrefix groups notifications of the same category for coalescing.
func (c Category) TagPrefix() string {
	switch c {
	case CategoryEventReminder:
		return "reminder"
	case CategoryChatMessage:
		return "chat"
	case CategoryNewEvent:
		return "new-event"
	case CategoryEventUpdate:
		return "event-update"
	}
	return "general"
}

// DefaultURL is where a click lands when the payload names no target.
func (c Category) DefaultURL() string {
	switch c {
	case CategoryChatMessage:
		return "/chat"
	case CategoryNewEvent, CategoryEventReminder, CategoryEventUpdate:
		return "/events"
	}
	return "/"
}

func (c Category) String() string {
	return string(c)
}

// NotificationPayload is what a push carries. Payloads sharing a Tag
// collapse into one visible notification.
type NotificationPayload struct {
	Title string                 `json:"title" binding:"required"`
	Body  string                 `json:"body" binding:"required"`
	Icon  string                 `json:"icon,omitempty"`
	Badge string                 `json:"badge,omitempty"`
	Tag   string                 `json:"tag,omitempty"`
	URL   string                 `json:"url,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Shaped fills in the category defaults for an incomplete payload.
func (p NotificationPayload) Shaped(c Category) NotificationPayload {
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultBadge
	}
	if p.URL == "" {
		if u, ok := p.Data["url"].(string); ok && u != "" {
			p.URL = u
		} else {
			p.URL = c.DefaultURL()
		}
	}
	if p.Tag == "" {
		p.Tag = c.TagPrefix()
		if id := p.subject(); id != "" {
			p.Tag += "-" + id
		}
	}
	return p
}

// subjectKeys name the data fields that identify what a notification is
// about, in lookup order.
var subjectKeys = []string{"eventId", "threadId", "senderId"}

// subject returns the id of the event or thread the payload is about, so
// alerts about different subjects never replace each other.
func (p NotificationPayload) subject() string {
	for _, k := range subjectKeys {
		switch v := p.Data[k].(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

const (
	DefaultIcon  = "/icons/icon-192.png"
	DefaultBadge = "/icons/badge-72.png"
)

// DispatchReason explains a dispatch outcome other than plain delivery.
type DispatchReason string

const (
	ReasonSkipped        DispatchReason = "skipped"
	ReasonNotFound       DispatchReason = "not_found"
	ReasonGatewayFailure DispatchReason = "gateway_failure"
)

// DispatchResult is the terminal state of a single dispatch call.
type DispatchResult struct {
	Success bool           `json:"success"`
	Reason  DispatchReason `json:"reason,omitempty"`
}
