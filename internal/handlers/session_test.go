package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coauthorhq/coauthor-api/internal/middleware"
	"github.com/coauthorhq/coauthor-api/internal/models"
	"github.com/coauthorhq/coauthor-api/internal/services"
	"github.com/coauthorhq/coauthor-api/pkg/dto"
	"github.com/coauthorhq/coauthor-api/tests/testutil"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	driftmw "github.com/m1z23r/drift/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupSessionTest(t *testing.T) (*testutil.MockSessionService, *testutil.MockUserService, *testutil.MockHub, *SessionHandler, *services.JWTService) {
	t.Helper()
	mockSessionService := new(testutil.MockSessionService)
	mockUserService := new(testutil.MockUserService)
	mockHub := new(testutil.MockHub)
	handler := NewSessionHandler(mockSessionService, mockUserService, mockHub)
	jwtSvc := services.NewJWTService("test-secret-key", 15*time.Minute)
	return mockSessionService, mockUserService, mockHub, handler, jwtSvc
}

func newSessionApp(handler *SessionHandler, jwtSvc *services.JWTService) http.Handler {
	app := drift.New()
	app.Use(driftmw.BodyParser())
	app.Use(middleware.Auth(jwtSvc))
	app.Post("/sessions", handler.Create)
	app.Post("/sessions/join", handler.Join)
	app.Post("/sessions/:sessionId/leave", handler.Leave)
	app.Post("/sessions/:sessionId/end", handler.End)
	app.Get("/sessions/:sessionId/participants", handler.Participants)
	return app
}

func TestSessionHandler_Create_Success(t *testing.T) {
	mockSessionService, mockUserService, _, handler, jwtSvc := setupSessionTest(t)

	userID := uuid.New()
	sessionID := uuid.New()
	session := &models.CollabSession{
		ID:             sessionID,
		Code:           "AB12CD",
		ResourceID:     "draft-1",
		HostID:         userID,
		IsActive:       true,
		WorkspaceState: json.RawMessage(`{"draft_text":"hello"}`),
		ExpiresAt:      time.Now().Add(4 * time.Hour),
	}

	mockUserService.On("Upsert", mock.Anything, userID, "test@example.com", "Avery Host", "coach").
		Return(&models.User{ID: userID}, nil)
	mockSessionService.On("Create", mock.Anything, "draft-1", userID, mock.Anything).Return(session, nil)

	app := newSessionApp(handler, jwtSvc)

	body, _ := json.Marshal(dto.CreateSessionRequest{
		ResourceID:   "draft-1",
		InitialState: json.RawMessage(`{"draft_text":"hello"}`),
	})
	token := generateTestToken(t, jwtSvc, userID, "Avery Host", "coach")
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var response dto.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, sessionID, response.SessionID)
	assert.Equal(t, "AB12CD", response.Code)
	assert.Equal(t, userID, response.HostID)
	assert.JSONEq(t, `{"draft_text":"hello"}`, string(response.Snapshot))

	mockSessionService.AssertExpectations(t)
	mockUserService.AssertExpectations(t)
}

func TestSessionHandler_Create_MissingResourceID(t *testing.T) {
	_, _, _, handler, jwtSvc := setupSessionTest(t)
	app := newSessionApp(handler, jwtSvc)

	body, _ := json.Marshal(dto.CreateSessionRequest{})
	token := generateTestToken(t, jwtSvc, uuid.New(), "Avery Host", "coach")
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Join_Success(t *testing.T) {
	mockSessionService, mockUserService, mockHub, handler, jwtSvc := setupSessionTest(t)

	userID := uuid.New()
	sessionID := uuid.New()
	hostID := uuid.New()
	session := &models.CollabSession{
		ID:             sessionID,
		Code:           "AB12CD",
		ResourceID:     "draft-1",
		HostID:         hostID,
		IsActive:       true,
		WorkspaceState: json.RawMessage(`{"draft_text":"current state"}`),
		ExpiresAt:      time.Now().Add(time.Hour),
	}

	mockUserService.On("Upsert", mock.Anything, userID, "test@example.com", "Blake Guest", "rater").
		Return(&models.User{ID: userID}, nil)
	mockSessionService.On("Join", mock.Anything, "ab12cd", userID, "Blake Guest", "rater").Return(session, nil)
	mockHub.On("BroadcastParticipantJoined", sessionID, userID, "Blake Guest", "rater").Return()

	app := newSessionApp(handler, jwtSvc)

	body, _ := json.Marshal(dto.JoinSessionRequest{Code: "ab12cd"})
	token := generateTestToken(t, jwtSvc, userID, "Blake Guest", "rater")
	req := httptest.NewRequest(http.MethodPost, "/sessions/join", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, sessionID, response.SessionID)
	// The joiner adopts the snapshot wholesale.
	assert.JSONEq(t, `{"draft_text":"current state"}`, string(response.Snapshot))

	mockSessionService.AssertExpectations(t)
	mockHub.AssertExpectations(t)
}

func TestSessionHandler_Join_NotFound(t *testing.T) {
	mockSessionService, mockUserService, _, handler, jwtSvc := setupSessionTest(t)

	userID := uuid.New()
	mockUserService.On("Upsert", mock.Anything, userID, "test@example.com", "Blake Guest", "rater").
		Return(&models.User{ID: userID}, nil)
	mockSessionService.On("Join", mock.Anything, "ZZZZZZ", userID, "Blake Guest", "rater").
		Return(nil, services.ErrSessionNotFound)

	app := newSessionApp(handler, jwtSvc)

	body, _ := json.Marshal(dto.JoinSessionRequest{Code: "ZZZZZZ"})
	token := generateTestToken(t, jwtSvc, userID, "Blake Guest", "rater")
	req := httptest.NewRequest(http.MethodPost, "/sessions/join", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_Join_Expired(t *testing.T) {
	mockSessionService, mockUserService, _, handler, jwtSvc := setupSessionTest(t)

	userID := uuid.New()
	mockUserService.On("Upsert", mock.Anything, userID, "test@example.com", "Blake Guest", "rater").
		Return(&models.User{ID: userID}, nil)
	mockSessionService.On("Join", mock.Anything, "AB12CD", userID, "Blake Guest", "rater").
		Return(nil, services.ErrSessionExpired)

	app := newSessionApp(handler, jwtSvc)

	body, _ := json.Marshal(dto.JoinSessionRequest{Code: "AB12CD"})
	token := generateTestToken(t, jwtSvc, userID, "Blake Guest", "rater")
	req := httptest.NewRequest(http.MethodPost, "/sessions/join", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestSessionHandler_Leave_NonHost(t *testing.T) {
	mockSessionService, _, mockHub, handler, jwtSvc := setupSessionTest(t)

	userID := uuid.New()
	sessionID := uuid.New()
	mockSessionService.On("Leave", mock.Anything, sessionID, userID).Return(false, nil)
	mockHub.On("BroadcastParticipantLeft", sessionID, userID).Return()

	app := newSessionApp(handler, jwtSvc)

	token := generateTestToken(t, jwtSvc, userID, "Blake Guest", "rater")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID.String()+"/leave", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.False(t, response["session_ended"])

	mockHub.AssertExpectations(t)
}

func TestSessionHandler_Leave_HostEndsSession(t *testing.T) {
	mockSessionService, _, mockHub, handler, jwtSvc := setupSessionTest(t)

	hostID := uuid.New()
	sessionID := uuid.New()
	mockSessionService.On("Leave", mock.Anything, sessionID, hostID).Return(true, nil)
	mockHub.On("BroadcastSessionEnded", sessionID, "host_left").Return()

	app := newSessionApp(handler, jwtSvc)

	token := generateTestToken(t, jwtSvc, hostID, "Avery Host", "coach")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID.String()+"/leave", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response["session_ended"])

	mockHub.AssertExpectations(t)
}

func TestSessionHandler_Leave_NotParticipant(t *testing.T) {
	mockSessionService, _, _, handler, jwtSvc := setupSessionTest(t)

	userID := uuid.New()
	sessionID := uuid.New()
	mockSessionService.On("Leave", mock.Anything, sessionID, userID).
		Return(false, services.ErrNotParticipant)

	app := newSessionApp(handler, jwtSvc)

	token := generateTestToken(t, jwtSvc, userID, "Blake Guest", "rater")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID.String()+"/leave", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_End_Success(t *testing.T) {
	mockSessionService, _, mockHub, handler, jwtSvc := setupSessionTest(t)

	hostID := uuid.New()
	sessionID := uuid.New()
	mockSessionService.On("End", mock.Anything, sessionID, hostID).Return(nil)
	mockHub.On("BroadcastSessionEnded", sessionID, "host_ended").Return()

	app := newSessionApp(handler, jwtSvc)

	token := generateTestToken(t, jwtSvc, hostID, "Avery Host", "coach")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID.String()+"/end", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockHub.AssertExpectations(t)
}

func TestSessionHandler_End_NotHost(t *testing.T) {
	mockSessionService, _, _, handler, jwtSvc := setupSessionTest(t)

	userID := uuid.New()
	sessionID := uuid.New()
	mockSessionService.On("End", mock.Anything, sessionID, userID).Return(services.ErrNotHost)

	app := newSessionApp(handler, jwtSvc)

	token := generateTestToken(t, jwtSvc, userID, "Blake Guest", "rater")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID.String()+"/end", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionHandler_End_InvalidSessionID(t *testing.T) {
	_, _, _, handler, jwtSvc := setupSessionTest(t)
	app := newSessionApp(handler, jwtSvc)

	token := generateTestToken(t, jwtSvc, uuid.New(), "Avery Host", "coach")
	req := httptest.NewRequest(http.MethodPost, "/sessions/not-a-uuid/end", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Participants(t *testing.T) {
	mockSessionService, _, _, handler, jwtSvc := setupSessionTest(t)

	userID := uuid.New()
	sessionID := uuid.New()
	hostID := uuid.New()
	leftAt := time.Now().Add(-time.Minute)
	mockSessionService.On("Participants", mock.Anything, sessionID).Return([]models.Participant{
		{UserID: hostID, DisplayName: "Avery Host", Role: "coach", IsHost: true, Status: models.ParticipantActive},
		{UserID: userID, DisplayName: "Blake Guest", Role: "rater", Status: models.ParticipantLeft, LeftAt: &leftAt},
	}, nil)

	app := newSessionApp(handler, jwtSvc)

	token := generateTestToken(t, jwtSvc, userID, "Blake Guest", "rater")
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID.String()+"/participants", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response []dto.ParticipantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)
	assert.True(t, response[0].IsHost)
	assert.Equal(t, models.ParticipantLeft, response[1].Status)
	require.NotNil(t, response[1].LeftAt)
}
