package hub

import (
	"encoding/json"
	"sync"

	"github.com/coauthorhq/coauthor-api/internal/collab"
	"github.com/google/uuid"
)

type Event struct {
	Type      string     `json:"type"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Data      any        `json:"data,omitempty"`
}

type DeltaData struct {
	SenderID uuid.UUID    `json:"sender_id"`
	Delta    collab.Delta `json:"delta"`
}

type ParticipantJoinedData struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}

type ParticipantLeftData struct {
	UserID uuid.UUID `json:"user_id"`
}

type SessionEndedData struct {
	Reason string `json:"reason"`
}

// OnlineUser is a connection-derived presence entry. It is distinct
// from the durable participant status: a participant can still be
// seated in the session while transiently offline.
type OnlineUser struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
}

type PresenceUpdateData struct {
	OnlineUsers []OnlineUser `json:"online_users"`
}

type Client struct {
	ID          string
	UserID      uuid.UUID
	DisplayName string
	Sessions    map[uuid.UUID]bool
	Send        chan []byte
}

// Hub fans session events out to connected clients. One run loop
// serializes all broadcasts, which is what gives a single sender's
// deltas their delivery order; there is no cross-sender order and the
// delta contract does not need one. Delivery is best effort: a client
// whose buffer is full loses the message and must resync from the
// durable snapshot on reconnect.
type Hub struct {
	clients    map[string]*Client
	unregister chan *Client
	broadcast  chan *sessionMessage
	mu         sync.RWMutex
}

type sessionMessage struct {
	sessionID     uuid.UUID
	excludeClient string
	event         Event
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *sessionMessage, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				sessions := make([]uuid.UUID, 0, len(client.Sessions))
				for sessionID := range client.Sessions {
					sessions = append(sessions, sessionID)
				}
				delete(h.clients, client.ID)
				close(client.Send)
				h.mu.Unlock()

				// Dropping a connection flips the user offline in
				// every session it was watching.
				for _, sessionID := range sessions {
					h.broadcastPresence(sessionID)
				}
			} else {
				h.mu.Unlock()
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.event)
			for _, client := range h.clients {
				if client.ID == msg.excludeClient {
					continue
				}
				if client.Sessions[msg.sessionID] {
					select {
					case client.Send <- data:
					default:
						// Client buffer full, skip
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register inserts the client under the mutex rather than through the
// run loop, so a subscribe issued right after Register returns is
// guaranteed to find the client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) SubscribeToSession(clientID string, sessionID uuid.UUID) {
	h.mu.Lock()
	if client, ok := h.clients[clientID]; ok {
		client.Sessions[sessionID] = true
	}
	h.mu.Unlock()

	h.broadcastPresence(sessionID)
}

func (h *Hub) UnsubscribeFromSession(clientID string, sessionID uuid.UUID) {
	h.mu.Lock()
	if client, ok := h.clients[clientID]; ok {
		delete(client.Sessions, sessionID)
	}
	h.mu.Unlock()

	h.broadcastPresence(sessionID)
}

// BroadcastDelta relays a state delta to every other connected client
// of the session. The sender is excluded: its local state already
// reflects the edit.
func (h *Hub) BroadcastDelta(sessionID uuid.UUID, senderClientID string, senderID uuid.UUID, delta collab.Delta) {
	h.broadcast <- &sessionMessage{
		sessionID:     sessionID,
		excludeClient: senderClientID,
		event: Event{
			Type:      "delta",
			SessionID: &sessionID,
			Data: DeltaData{
				SenderID: senderID,
				Delta:    delta,
			},
		},
	}
}

func (h *Hub) BroadcastParticipantJoined(sessionID, userID uuid.UUID, displayName, role string) {
	h.broadcast <- &sessionMessage{
		sessionID: sessionID,
		event: Event{
			Type:      "participant_joined",
			SessionID: &sessionID,
			Data: ParticipantJoinedData{
				UserID:      userID,
				DisplayName: displayName,
				Role:        role,
			},
		},
	}
}

func (h *Hub) BroadcastParticipantLeft(sessionID, userID uuid.UUID) {
	h.broadcast <- &sessionMessage{
		sessionID: sessionID,
		event: Event{
			Type:      "participant_left",
			SessionID: &sessionID,
			Data: ParticipantLeftData{
				UserID: userID,
			},
		},
	}
}

// BroadcastSessionEnded is terminal: everyone still connected learns
// the room is gone, whatever ended it (host end, host exit, reaper).
func (h *Hub) BroadcastSessionEnded(sessionID uuid.UUID, reason string) {
	h.broadcast <- &sessionMessage{
		sessionID: sessionID,
		event: Event{
			Type:      "session_ended",
			SessionID: &sessionID,
			Data: SessionEndedData{
				Reason: reason,
			},
		},
	}
}

// broadcastPresence recomputes the online roster for a session and
// sends it to everyone watching, deduped by user id so a second tab
// does not show a second person.
func (h *Hub) broadcastPresence(sessionID uuid.UUID) {
	h.mu.RLock()
	seen := make(map[uuid.UUID]bool)
	var online []OnlineUser
	for _, client := range h.clients {
		if client.Sessions[sessionID] && !seen[client.UserID] {
			seen[client.UserID] = true
			online = append(online, OnlineUser{
				UserID:      client.UserID,
				DisplayName: client.DisplayName,
			})
		}
	}
	h.mu.RUnlock()

	if online == nil {
		online = []OnlineUser{}
	}

	event := Event{
		Type:      "presence_update",
		SessionID: &sessionID,
		Data: PresenceUpdateData{
			OnlineUsers: online,
		},
	}

	data, _ := json.Marshal(event)

	h.mu.RLock()
	for _, client := range h.clients {
		if client.Sessions[sessionID] {
			select {
			case client.Send <- data:
			default:
			}
		}
	}
	h.mu.RUnlock()
}
