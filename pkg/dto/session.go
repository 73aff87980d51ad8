package dto

import (
	"encoding/json"
	"time"

	"github.com/coauthorhq/coauthor-api/internal/collab"
	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	ResourceID   string          `json:"resource_id"`
	InitialState json.RawMessage `json:"initial_state,omitempty"`
}

type JoinSessionRequest struct {
	Code string `json:"code"`
}

type SessionResponse struct {
	SessionID  uuid.UUID       `json:"session_id"`
	Code       string          `json:"code"`
	ResourceID string          `json:"resource_id"`
	HostID     uuid.UUID       `json:"host_id"`
	Snapshot   json.RawMessage `json:"snapshot"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

type SaveSnapshotRequest struct {
	// State is the client's full workspace, stored wholesale.
	State json.RawMessage `json:"state"`
}

type PublishDeltaRequest struct {
	// ClientID identifies the sender's stream connection so the
	// broadcast can skip echoing the delta back to it.
	ClientID string       `json:"client_id,omitempty"`
	Delta    collab.Delta `json:"delta"`
}

type ParticipantResponse struct {
	UserID      uuid.UUID  `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	IsHost      bool       `json:"is_host"`
	Status      string     `json:"status"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}
