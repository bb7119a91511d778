package model

import (
	"time"
)

// Preferences holds the per-category push switches of a device registration.
// A nil field means the user never set it and the category default applies.
type Preferences struct {
	EventReminders *bool `json:"eventReminders,omitempty" gorm:"column:event_reminders"`
	ChatMessages   *bool `json:"chatMessages,omitempty" gorm:"column:chat_messages"`
	NewEvents      *bool `json:"newEvents,omitempty" gorm:"column:new_events"`
	EventUpdates   *bool `json:"eventUpdates,omitempty" gorm:"column:event_updates"`
}

// Enabled resolves the switch for a category, falling back to its default.
func (p Preferences) Enabled(c Category) bool {
	var v *bool
	switch c {
	case CategoryEventReminder:
		v = p.EventReminders
	case CategoryChatMessage:
		v = p.ChatMessages
	case CategoryNewEvent:
		v = p.NewEvents
	case CategoryEventUpdate:
		v = p.EventUpdates
	default:
		return false
	}
	if v == nil {
		return c.DefaultEnabled()
	}
	return *v
}

// Merge overlays the fields set in other onto p.
func (p Preferences) Merge(other Preferences) Preferences {
	if other.EventReminders != nil {
		p.EventReminders = other.EventReminders
	}
	if other.ChatMessages != nil {
		p.ChatMessages = other.ChatMessages
	}
	if other.NewEvents != nil {
		p.NewEvents = other.NewEvents
	}
	if other.EventUpdates != nil {
		p.EventUpdates = other.EventUpdates
	}
	return p
}

// Columns returns the column assignments for the fields that are set.
func (p Preferences) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.EventReminders != nil {
		cols["event_reminders"] = *p.EventReminders
	}
	if p.ChatMessages != nil {
		cols["chat_messages"] = *p.ChatMessages
	}
	if p.NewEvents != nil {
		cols["new_events"] = *p.NewEvents
	}
	if p.EventUpdates != nil {
		cols["event_updates"] = *p.EventUpdates
	}
	return cols
}

// DefaultPreferences returns every category set to its documented default.
func DefaultPreferences() Preferences {
	return Preferences{
		EventReminders: Bool(CategoryEventReminder.DefaultEnabled()),
		ChatMessages:   Bool(CategoryChatMessage.DefaultEnabled()),
		NewEvents:      Bool(CategoryNewEvent.DefaultEnabled()),
		EventUpdates:   Bool(CategoryEventUpdate.DefaultEnabled()),
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// DeviceRegistration associates a user with a messaging token and alert preferences.
// There is at most one registration per user.
type DeviceRegistration struct {
	UserID      string      `json:"userId" gorm:"primaryKey;size:128"`
	Token       string      `json:"token" gorm:"size:4096;default:''"`
	Preferences Preferences `json:"preferences" gorm:"embedded"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// ResolvedPreferences returns the preferences with defaults filled in.
func (d *DeviceRegistration) ResolvedPreferences() Preferences {
	return DefaultPreferences().Merge(d.Preferences)
}
