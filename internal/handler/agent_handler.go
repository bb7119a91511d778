package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/eventspot/internal/agent"
	"github.com/quocanhngo/eventspot/internal/consent"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/ws"
)

// AgentHandler serves the agent's control endpoints under /__agent
type AgentHandler struct {
	agent    *agent.Agent
	hub      *ws.Hub
	creds    *consent.Credentials
	userID   string
	upgrader websocket.Upgrader
}

// NewAgentHandler creates the handler. Only pages from origin may open a
// session. userID is the user consent is enabled for when a request names
// none; creds receives the API tokens pages hand over on sign-in.
func NewAgentHandler(a *agent.Agent, hub *ws.Hub, creds *consent.Credentials, origin, userID string) *AgentHandler {
	return &AgentHandler{
		agent:  a,
		hub:    hub,
		creds:  creds,
		userID: userID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				o := r.Header.Get("Origin")
				return o == "" || o == origin || strings.HasPrefix(o, "http://"+r.Host)
			},
		},
	}
}

// Register mounts the endpoints on r
func (h *AgentHandler) Register(r gin.IRouter) {
	g := r.Group("/__agent")
	g.POST("/message", h.Message)
	g.POST("/push", h.Push)
	g.POST("/notifications/click", h.Click)
	g.GET("/notifications", h.Notifications)
	g.POST("/deploy", h.Deploy)
	g.GET("/status", h.Status)
	g.POST("/consent", h.Enable)
	g.PUT("/consent/identity", h.Identity)
	g.PATCH("/consent/preferences", h.Preferences)
	g.GET("/ws", h.Session)
}

type actionResponse struct {
	Action string `json:"action"`
}

// Message handles control messages such as skip-waiting
func (h *AgentHandler) Message(c *gin.Context) {
	var msg model.ControlMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	act, err := h.agent.Handle(c.Request.Context(), agent.Event{Kind: agent.EventMessage, Control: msg.Type})
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, actionResponse{Action: act.Name()})
}

// Push receives a push delivery relayed to this device
func (h *AgentHandler) Push(c *gin.Context) {
	var payload model.NotificationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	act, err := h.agent.Handle(c.Request.Context(), agent.Event{Kind: agent.EventPush, Payload: payload})
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, actionResponse{Action: act.Name()})
}

// Click routes a click on a visible notification
func (h *AgentHandler) Click(c *gin.Context) {
	var req model.NotificationClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	act, err := h.agent.Click(c.Request.Context(), req.Tag, req.Action)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, actionResponse{Action: act.Name()})
}

// Notifications lists the visible notifications
func (h *AgentHandler) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Tray().List())
}

type deployRequest struct {
	Version string `json:"version" binding:"required"`
}

// Deploy installs a new cache version
func (h *AgentHandler) Deploy(c *gin.Context) {
	var req deployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if _, err := h.agent.Handle(c.Request.Context(), agent.Event{Kind: agent.EventInstall, Version: req.Version}); err != nil {
		c.JSON(http.StatusBadGateway, model.ErrorResponse{Error: "Install failed", Message: err.Error()})
		return
	}
	h.Status(c)
}

type statusResponse struct {
	Cache    agent.Status `json:"cache"`
	Sessions []ws.Info    `json:"sessions"`
	Consent  string       `json:"consent"`
	Pending  []string     `json:"pending,omitempty"`
}

// Status reports the lifecycle, sessions and permission state
func (h *AgentHandler) Status(c *gin.Context) {
	st, err := h.agent.Lifecycle().Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
		return
	}
	resp := statusResponse{
		Cache:    st,
		Sessions: h.hub.Sessions(),
		Consent:  consent.StateUnsupported.String(),
		Pending:  h.agent.Pending(),
	}
	if m := h.agent.Consent(); m != nil {
		resp.Consent = m.State().String()
	}
	c.JSON(http.StatusOK, resp)
}

type enableRequest struct {
	UserID      string             `json:"userId"`
	Token       string             `json:"token"`
	Preferences *model.Preferences `json:"preferences"`
}

type consentResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// Enable asks for notification permission and registers the token.
// Refusal is not an error for the caller.
func (h *AgentHandler) Enable(c *gin.Context) {
	m := h.agent.Consent()
	if m == nil {
		c.JSON(http.StatusOK, consentResponse{State: consent.StateUnsupported.String()})
		return
	}

	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = h.userID
	}
	if req.Token != "" {
		h.creds.Set(userID, req.Token)
	}

	state, err := m.Enable(c.Request.Context(), userID, req.Preferences)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, consentResponse{State: state.String()})
	case errors.Is(err, consent.ErrDenied), errors.Is(err, consent.ErrUnsupported):
		c.JSON(http.StatusOK, consentResponse{State: state.String(), Error: err.Error()})
	case errors.Is(err, consent.ErrNoIdentity), errors.Is(err, consent.ErrNoCredential):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("❌ Enabling notifications failed: %v", err)
		c.JSON(http.StatusBadGateway, consentResponse{State: state.String(), Error: err.Error()})
	}
}

type identityRequest struct {
	UserID string `json:"userId"`
	// Token is the API bearer token of the user
	Token string `json:"token"`
}

// Identity tells the agent which user is signed in. An empty userId signs out.
func (h *AgentHandler) Identity(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	m := h.agent.Consent()
	if m == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if prev := m.UserID(); prev != "" && prev != req.UserID {
		h.creds.Set(prev, "")
	}
	if req.Token != "" {
		h.creds.Set(req.UserID, req.Token)
	}
	if err := m.OnIdentityChange(c.Request.Context(), req.UserID); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, consent.ErrNoCredential) {
			status = http.StatusBadRequest
		}
		c.JSON(status, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Preferences forwards preference changes to the API
func (h *AgentHandler) Preferences(c *gin.Context) {
	var req model.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	m := h.agent.Consent()
	if m == nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: consent.ErrUnsupported.Error()})
		return
	}
	if err := m.UpdatePreferences(c.Request.Context(), req.Preferences); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, consent.ErrNoIdentity) {
			status = http.StatusBadRequest
		}
		c.JSON(status, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Session upgrades a foreground page to a websocket session
// Page connects with: ws://agent/__agent/ws?url=<current page>
func (h *AgentHandler) Session(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	h.hub.Attach(conn, c.Query("url"))
}
