package discord

import "sync"

// Controller tracks who may drive a game: the application owners always,
// plus whoever started the current game.
type Controller struct {
	mu        sync.RWMutex
	owners    map[string]struct{}
	gameOwner string
}

// NewController creates an empty Controller.
func NewController() *Controller {
	return &Controller{owners: make(map[string]struct{})}
}

// SetOwners replaces the application owner set.
func (c *Controller) SetOwners(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.owners[id] = struct{}{}
	}
}

// SetGameOwner records the user who started the current game. An empty
// id clears the slot.
func (c *Controller) SetGameOwner(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gameOwner = id
}

// InControl reports whether userID may drive the current game.
func (c *Controller) InControl(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.owners[userID]; ok {
		return true
	}
	return c.gameOwner != "" && c.gameOwner == userID
}
