package model

// ========== Dispatch DTOs ==========

type DispatchRequest struct {
	UserID  string              `json:"userId" binding:"required"`
	Type    Category            `json:"type" binding:"required,oneof=event_reminder chat_message new_event event_update"`
	Payload NotificationPayload `json:"payload"`
}

// DispatchResponse is the dispatch endpoint reply. Error is set on 404/500.
type DispatchResponse struct {
	DispatchResult
	Error string `json:"error,omitempty"`
}

// ========== Device Registration DTOs ==========

type UpsertRegistrationRequest struct {
	Token       string       `json:"token" binding:"required"`
	Preferences *Preferences `json:"preferences"`
}

type UpdatePreferencesRequest struct {
	Preferences
}

// ========== Message DTOs ==========

type SendMessageRequest struct {
	RecipientID string `json:"recipientId" binding:"required"`
	EventID     string `json:"eventId"`
	Content     string `json:"content" binding:"required,max=4000"`
}

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Events exchanged between the agent and its foreground sessions
const (
	WSEventHello             = "hello"
	WSEventNavigated         = "navigated"
	WSEventControl           = "control"
	WSEventPush              = "push"
	WSEventFocus             = "focus"
	WSEventNavigate          = "navigate"
	WSEventClaim             = "claim"
	WSEventPermissionRequest = "permission_request"
	WSEventPermissionResult  = "permission_result"
)

type HelloEvent struct {
	URL string `json:"url"`
}

type PermissionResultEvent struct {
	Permission string `json:"permission"`
	Token      string `json:"token,omitempty"`
}

// ControlMessage is an application-to-agent signal.
type ControlMessage struct {
	Type string `json:"type" binding:"required"`
}

const ControlSkipWaiting = "skip-waiting"

type NotificationClickRequest struct {
	Tag    string `json:"tag" binding:"required"`
	Action string `json:"action"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
