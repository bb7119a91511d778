package consent

import (
	"errors"
	"sync"
)

// ErrNoCredential is returned when the agent holds no API token for a user
var ErrNoCredential = errors.New("no API credential for user")

// Credentials holds the API bearer token of each user signed in on this
// device, so registrations are always made as the user they belong to.
type Credentials struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewCredentials() *Credentials {
	return &Credentials{tokens: make(map[string]string)}
}

// Set stores the bearer token of userID. An empty token forgets the user.
func (c *Credentials) Set(userID, bearer string) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if bearer == "" {
		delete(c.tokens, userID)
		return
	}
	c.tokens[userID] = bearer
}

// Bearer returns the token of userID or ErrNoCredential
func (c *Credentials) Bearer(userID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[userID]
	if !ok {
		return "", ErrNoCredential
	}
	return t, nil
}
