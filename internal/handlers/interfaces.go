package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coauthorhq/coauthor-api/internal/collab"
	"github.com/coauthorhq/coauthor-api/internal/hub"
	"github.com/coauthorhq/coauthor-api/internal/models"
	"github.com/google/uuid"
)

// LockServiceInterface defines the methods used by handlers from LockService
type LockServiceInterface interface {
	TTL() time.Duration
	Acquire(ctx context.Context, resourceID string, userID uuid.UUID) (*models.LockResult, error)
	Refresh(ctx context.Context, resourceID string, userID uuid.UUID) (bool, error)
	Release(ctx context.Context, resourceID string, userID uuid.UUID) (bool, error)
	ListActive(ctx context.Context, resourceGroupID string) ([]models.SectionLock, error)
}

// SessionServiceInterface defines the methods used by handlers from SessionService
type SessionServiceInterface interface {
	Create(ctx context.Context, resourceID string, hostID uuid.UUID, initialState json.RawMessage) (*models.CollabSession, error)
	Join(ctx context.Context, code string, userID uuid.UUID, displayName, role string) (*models.CollabSession, error)
	Leave(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
	End(ctx context.Context, sessionID, callerID uuid.UUID) error
	PersistSnapshot(ctx context.Context, sessionID uuid.UUID, state json.RawMessage) error
	MergeDelta(ctx context.Context, sessionID uuid.UUID, fragment json.RawMessage) error
	Touch(ctx context.Context, sessionID uuid.UUID) (time.Time, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*models.CollabSession, error)
	IsActiveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
	Participants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
}

// UserServiceInterface defines the methods used by handlers from UserService
type UserServiceInterface interface {
	Upsert(ctx context.Context, id uuid.UUID, email, name, role string) (*models.User, error)
}

// HubInterface defines the methods used by handlers from the Hub
type HubInterface interface {
	Register(client *hub.Client)
	Unregister(client *hub.Client)
	SubscribeToSession(clientID string, sessionID uuid.UUID)
	UnsubscribeFromSession(clientID string, sessionID uuid.UUID)
	BroadcastDelta(sessionID uuid.UUID, senderClientID string, senderID uuid.UUID, delta collab.Delta)
	BroadcastParticipantJoined(sessionID, userID uuid.UUID, displayName, role string)
	BroadcastParticipantLeft(sessionID, userID uuid.UUID)
	BroadcastSessionEnded(sessionID uuid.UUID, reason string)
}
