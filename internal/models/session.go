package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Participant statuses. Rows are flipped to left on leave, never
// deleted, so session membership stays auditable.
const (
	ParticipantActive = "active"
	ParticipantLeft   = "left"
)

type CollabSession struct {
	ID             uuid.UUID       `json:"id"`
	Code           string          `json:"code"`
	ResourceID     string          `json:"resource_id"`
	HostID         uuid.UUID       `json:"host_id"`
	IsActive       bool            `json:"is_active"`
	WorkspaceState json.RawMessage `json:"workspace_state"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

type Participant struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	UserID      uuid.UUID  `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	IsHost      bool       `json:"is_host"`
	Status      string     `json:"status"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}
