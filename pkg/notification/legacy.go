package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LegacyGateway speaks the plain HTTP push contract: a bearer-authenticated
// POST of {to, notification, data} answered with success/failure counts.
type LegacyGateway struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

// NewLegacyGateway creates an HTTP gateway. A zero timeout leaves the
// client without a deadline beyond the caller's context.
func NewLegacyGateway(endpoint, serverKey string, timeout time.Duration) *LegacyGateway {
	return &LegacyGateway{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type legacyRequest struct {
	To           string             `json:"to"`
	Notification legacyNotification `json:"notification"`
	Data         map[string]string  `json:"data,omitempty"`
}

type legacyNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Icon        string `json:"icon,omitempty"`
	Badge       string `json:"badge,omitempty"`
	Tag         string `json:"tag,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

type legacyResponse struct {
	MulticastID int64 `json:"multicast_id"`
	Success     int   `json:"success"`
	Failure     int   `json:"failure"`
	Results     []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push gateway returned %d: %s", e.StatusCode, e.Body)
}

func (g *LegacyGateway) Send(ctx context.Context, msg Message) (*Result, error) {
	if g == nil || g.serverKey == "" {
		return nil, ErrDisabled
	}

	payload, err := json.Marshal(legacyRequest{
		To: msg.Token,
		Notification: legacyNotification{
			Title:       msg.Title,
			Body:        msg.Body,
			Icon:        msg.Icon,
			Badge:       msg.Badge,
			Tag:         msg.Tag,
			ClickAction: msg.ClickAction,
		},
		Data: msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Result{StatusCode: resp.StatusCode}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var lr legacyResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	result := &Result{
		SuccessCount: lr.Success,
		FailureCount: lr.Failure,
		StatusCode:   resp.StatusCode,
	}
	for _, r := range lr.Results {
		if r.MessageID != "" {
			result.MessageID = r.MessageID
		}
	}
	return result, nil
}
