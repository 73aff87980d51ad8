package testutil

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coauthorhq/coauthor-api/internal/collab"
	"github.com/coauthorhq/coauthor-api/internal/hub"
	"github.com/coauthorhq/coauthor-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockLockService mocks the LockService
type MockLockService struct {
	mock.Mock
}

func (m *MockLockService) TTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockLockService) Acquire(ctx context.Context, resourceID string, userID uuid.UUID) (*models.LockResult, error) {
	args := m.Called(ctx, resourceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LockResult), args.Error(1)
}

func (m *MockLockService) Refresh(ctx context.Context, resourceID string, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, resourceID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockService) Release(ctx context.Context, resourceID string, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, resourceID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockService) ListActive(ctx context.Context, resourceGroupID string) ([]models.SectionLock, error) {
	args := m.Called(ctx, resourceGroupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SectionLock), args.Error(1)
}

// MockSessionService mocks the SessionService
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Create(ctx context.Context, resourceID string, hostID uuid.UUID, initialState json.RawMessage) (*models.CollabSession, error) {
	args := m.Called(ctx, resourceID, hostID, initialState)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CollabSession), args.Error(1)
}

func (m *MockSessionService) Join(ctx context.Context, code string, userID uuid.UUID, displayName, role string) (*models.CollabSession, error) {
	args := m.Called(ctx, code, userID, displayName, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CollabSession), args.Error(1)
}

func (m *MockSessionService) Leave(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionService) End(ctx context.Context, sessionID, callerID uuid.UUID) error {
	args := m.Called(ctx, sessionID, callerID)
	return args.Error(0)
}

func (m *MockSessionService) PersistSnapshot(ctx context.Context, sessionID uuid.UUID, state json.RawMessage) error {
	args := m.Called(ctx, sessionID, state)
	return args.Error(0)
}

func (m *MockSessionService) MergeDelta(ctx context.Context, sessionID uuid.UUID, fragment json.RawMessage) error {
	args := m.Called(ctx, sessionID, fragment)
	return args.Error(0)
}

func (m *MockSessionService) Touch(ctx context.Context, sessionID uuid.UUID) (time.Time, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockSessionService) Get(ctx context.Context, sessionID uuid.UUID) (*models.CollabSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CollabSession), args.Error(1)
}

func (m *MockSessionService) IsActiveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionService) Participants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Participant), args.Error(1)
}

// MockUserService mocks the UserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Upsert(ctx context.Context, id uuid.UUID, email, name, role string) (*models.User, error) {
	args := m.Called(ctx, id, email, name, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockHub mocks the Hub broadcast surface
type MockHub struct {
	mock.Mock
}

func (m *MockHub) Register(client *hub.Client) {
	m.Called(client)
}

func (m *MockHub) Unregister(client *hub.Client) {
	m.Called(client)
}

func (m *MockHub) SubscribeToSession(clientID string, sessionID uuid.UUID) {
	m.Called(clientID, sessionID)
}

func (m *MockHub) UnsubscribeFromSession(clientID string, sessionID uuid.UUID) {
	m.Called(clientID, sessionID)
}

func (m *MockHub) BroadcastDelta(sessionID uuid.UUID, senderClientID string, senderID uuid.UUID, delta collab.Delta) {
	m.Called(sessionID, senderClientID, senderID, delta)
}

func (m *MockHub) BroadcastParticipantJoined(sessionID, userID uuid.UUID, displayName, role string) {
	m.Called(sessionID, userID, displayName, role)
}

func (m *MockHub) BroadcastParticipantLeft(sessionID, userID uuid.UUID) {
	m.Called(sessionID, userID)
}

func (m *MockHub) BroadcastSessionEnded(sessionID uuid.UUID, reason string) {
	m.Called(sessionID, reason)
}
