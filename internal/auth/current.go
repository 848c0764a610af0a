package auth

import "sync"

// Current holds the token of the signed-in user. Transports and the REST
// client read it on every request, so a new login takes effect immediately.
type Current struct {
	mu    sync.RWMutex
	token string
	id    Identity
}

func (c *Current) Set(token string, id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.id = token, id
}

func (c *Current) Clear() {
	c.Set("", Identity{})
}

func (c *Current) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Current) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}
