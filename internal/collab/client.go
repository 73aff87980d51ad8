package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Publisher sends a locally produced delta to the rest of the session.
// Delivery is fire-and-forget from the editor's point of view; the
// local state has already moved on by the time this is called.
type Publisher interface {
	PublishDelta(ctx context.Context, sessionID uuid.UUID, delta Delta) error
}

// ClientSession is one participant's local mirror of a collab session.
// It is seeded wholesale from the snapshot returned by create/join,
// applies local edits immediately before publishing them, and folds
// inbound deltas in by field-level overwrite. Local typing never
// blocks on the network.
type ClientSession struct {
	SessionID uuid.UUID
	Code      string

	mu        sync.RWMutex
	workspace Workspace
	publisher Publisher
}

func NewClientSession(sessionID uuid.UUID, code string, snapshot json.RawMessage, publisher Publisher) (*ClientSession, error) {
	var w Workspace
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &w); err != nil {
			return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
		}
	}
	return &ClientSession{
		SessionID: sessionID,
		Code:      code,
		workspace: w,
		publisher: publisher,
	}, nil
}

// Workspace returns a copy of the current local state.
func (c *ClientSession) Workspace() Workspace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workspace
}

// ApplyLocal applies an edit to local state first, then broadcasts it.
// A publish failure leaves the local edit in place; the durable
// snapshot catches the receiver up on its next join.
func (c *ClientSession) ApplyLocal(ctx context.Context, delta Delta) error {
	c.mu.Lock()
	if err := c.workspace.ApplyDelta(delta); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := c.publisher.PublishDelta(ctx, c.SessionID, delta); err != nil {
		return fmt.Errorf("failed to publish delta: %w", err)
	}
	return nil
}

// ApplyRemote folds in a delta from another participant. Unknown kinds
// are rejected so a newer peer cannot silently corrupt local state.
func (c *ClientSession) ApplyRemote(delta Delta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspace.ApplyDelta(delta)
}

// Resync replaces local state wholesale from a durable snapshot, used
// after a reconnect instead of replaying missed deltas.
func (c *ClientSession) Resync(snapshot json.RawMessage) error {
	var w Workspace
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &w); err != nil {
			return fmt.Errorf("failed to decode session snapshot: %w", err)
		}
	}
	c.mu.Lock()
	c.workspace = w
	c.mu.Unlock()
	return nil
}
