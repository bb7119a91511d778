package consent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quocanhngo/eventspot/internal/model"
)

// HTTPRegistrar upserts the device registration through the API server
type HTTPRegistrar struct {
	baseURL string
	bearer  func(userID string) (string, error)
	client  *http.Client
}

// NewHTTPRegistrar creates a registrar for the API at baseURL. bearer
// returns the API token of a user; the server registers the device for the
// user that token names.
func NewHTTPRegistrar(baseURL string, bearer func(userID string) (string, error), timeout time.Duration) *HTTPRegistrar {
	return &HTTPRegistrar{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		bearer:  bearer,
		client:  &http.Client{Timeout: timeout},
	}
}

// Register sends the token for userID with merge semantics
func (r *HTTPRegistrar) Register(ctx context.Context, userID, token string, prefs *model.Preferences) error {
	return r.send(ctx, userID, http.MethodPut, "/devices/registration", model.UpsertRegistrationRequest{
		Token:       token,
		Preferences: prefs,
	})
}

func (r *HTTPRegistrar) UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) error {
	return r.send(ctx, userID, http.MethodPatch, "/devices/registration/preferences", model.UpdatePreferencesRequest{Preferences: prefs})
}

func (r *HTTPRegistrar) send(ctx context.Context, userID, method, path string, body interface{}) error {
	bearer, err := r.bearer(userID)
	if err != nil {
		return fmt.Errorf("%s %s as %s: %w", method, path, userID, err)
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e model.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%s %s: %d", method, path, resp.StatusCode)
	}
	return nil
}
