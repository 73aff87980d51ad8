package handlers

import (
	"context"
	"errors"

	"github.com/coauthorhq/coauthor-api/internal/middleware"
	"github.com/coauthorhq/coauthor-api/internal/services"
	"github.com/coauthorhq/coauthor-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type SessionHandler struct {
	sessionService SessionServiceInterface
	userService    UserServiceInterface
	hub            HubInterface
}

func NewSessionHandler(sessionService SessionServiceInterface, userService UserServiceInterface, h HubInterface) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		userService:    userService,
		hub:            h,
	}
}

func (h *SessionHandler) Create(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.CreateSessionRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.ResourceID == "" {
		c.BadRequest("resource_id is required")
		return
	}

	ctx := context.Background()

	// Mirror the caller's identity first so the host row and every
	// later holder lookup have a name to join against.
	if _, err := h.userService.Upsert(ctx, userID, middleware.GetUserEmail(c), middleware.GetUserName(c), middleware.GetUserRole(c)); err != nil {
		c.InternalServerError("failed to record user")
		return
	}

	session, err := h.sessionService.Create(ctx, req.ResourceID, userID, req.InitialState)
	if err != nil {
		c.InternalServerError("failed to create session")
		return
	}

	_ = c.JSON(201, dto.SessionResponse{
		SessionID:  session.ID,
		Code:       session.Code,
		ResourceID: session.ResourceID,
		HostID:     session.HostID,
		Snapshot:   session.WorkspaceState,
		ExpiresAt:  session.ExpiresAt,
	})
}

func (h *SessionHandler) Join(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.JoinSessionRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.Code == "" {
		c.BadRequest("code is required")
		return
	}

	ctx := context.Background()

	displayName := middleware.GetUserName(c)
	role := middleware.GetUserRole(c)

	if _, err := h.userService.Upsert(ctx, userID, middleware.GetUserEmail(c), displayName, role); err != nil {
		c.InternalServerError("failed to record user")
		return
	}

	session, err := h.sessionService.Join(ctx, req.Code, userID, displayName, role)
	if errors.Is(err, services.ErrSessionNotFound) {
		c.NotFound("session not found")
		return
	}
	if errors.Is(err, services.ErrSessionExpired) {
		_ = c.JSON(410, map[string]string{"error": "session expired"})
		return
	}
	if err != nil {
		c.InternalServerError("failed to join session")
		return
	}

	h.hub.BroadcastParticipantJoined(session.ID, userID, displayName, role)

	_ = c.JSON(200, dto.SessionResponse{
		SessionID:  session.ID,
		Code:       session.Code,
		ResourceID: session.ResourceID,
		HostID:     session.HostID,
		Snapshot:   session.WorkspaceState,
		ExpiresAt:  session.ExpiresAt,
	})
}

func (h *SessionHandler) Leave(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		c.BadRequest("invalid session id")
		return
	}

	ended, err := h.sessionService.Leave(context.Background(), sessionID, userID)
	if errors.Is(err, services.ErrNotParticipant) {
		c.NotFound("not a participant of this session")
		return
	}
	if err != nil {
		c.InternalServerError("failed to leave session")
		return
	}

	if ended {
		// Host leaving kills the room for everyone.
		h.hub.BroadcastSessionEnded(sessionID, "host_left")
	} else {
		h.hub.BroadcastParticipantLeft(sessionID, userID)
	}

	_ = c.JSON(200, map[string]bool{"session_ended": ended})
}

func (h *SessionHandler) End(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		c.BadRequest("invalid session id")
		return
	}

	err = h.sessionService.End(context.Background(), sessionID, userID)
	if errors.Is(err, services.ErrSessionNotFound) {
		c.NotFound("session not found")
		return
	}
	if errors.Is(err, services.ErrNotHost) {
		c.Forbidden("only the host can end the session")
		return
	}
	if err != nil {
		c.InternalServerError("failed to end session")
		return
	}

	h.hub.BroadcastSessionEnded(sessionID, "host_ended")

	_ = c.JSON(200, map[string]string{"message": "session ended"})
}

func (h *SessionHandler) Participants(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		c.BadRequest("invalid session id")
		return
	}

	participants, err := h.sessionService.Participants(context.Background(), sessionID)
	if err != nil {
		c.InternalServerError("failed to list participants")
		return
	}

	response := make([]dto.ParticipantResponse, len(participants))
	for i, p := range participants {
		response[i] = dto.ParticipantResponse{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			IsHost:      p.IsHost,
			Status:      p.Status,
			JoinedAt:    p.JoinedAt,
			LeftAt:      p.LeftAt,
		}
	}
	_ = c.JSON(200, response)
}
