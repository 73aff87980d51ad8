package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/coauthorhq/coauthor-api/internal/collab"
	"github.com/coauthorhq/coauthor-api/internal/hub"
	"github.com/coauthorhq/coauthor-api/internal/middleware"
	"github.com/coauthorhq/coauthor-api/internal/services"
	"github.com/coauthorhq/coauthor-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type StreamHandler struct {
	h              HubInterface
	sessionService SessionServiceInterface
}

func NewStreamHandler(h HubInterface, sessionService SessionServiceInterface) *StreamHandler {
	return &StreamHandler{
		h:              h,
		sessionService: sessionService,
	}
}

// Connect opens the SSE stream for one session. The first event hands
// the client its stream id, which it echoes on publishes so its own
// deltas are not reflected back.
func (h *StreamHandler) Connect(c *drift.Context) {
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

	ctx := context.Background()

	ok, err := h.sessionService.IsActiveParticipant(ctx, sessionID, userID)
	if err != nil || !ok {
		c.NotFound("session not found")
		return
	}

	sseCtx := c.SSE()

	// The session is seeded on the client before registration, so no
	// broadcast can slip between the register and the subscribe.
	clientID := uuid.New().String()
	client := &hub.Client{
		ID:          clientID,
		UserID:      userID,
		DisplayName: middleware.GetUserName(c),
		Sessions:    map[uuid.UUID]bool{sessionID: true},
		Send:        make(chan []byte, 256),
	}

	h.h.Register(client)
	defer h.h.Unregister(client)

	if err := sseCtx.SendJSON(map[string]string{
		"type":      "connected",
		"client_id": clientID,
	}, "system", ""); err != nil {
		return
	}

	// The client is already seated in the session; this announces it to
	// everyone watching, itself included.
	h.h.SubscribeToSession(clientID, sessionID)

	done := make(chan struct{})
	go func() {
		<-c.Request.Context().Done()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := sseCtx.Send(string(msg), "message", ""); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// PublishDelta is the write side of the channel: validate, fold the
// delta into the durable snapshot, then fan it out to everyone else.
// Broadcast is fire-and-forget from the sender's perspective.
func (h *StreamHandler) PublishDelta(c *drift.Context) {
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

	var req dto.PublishDeltaRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if err := req.Delta.Validate(); err != nil {
		c.BadRequest(err.Error())
		return
	}

	ctx := context.Background()

	ok, err := h.sessionService.IsActiveParticipant(ctx, sessionID, userID)
	if err != nil {
		c.InternalServerError("failed to check participant")
		return
	}
	if !ok {
		c.NotFound("session not found")
		return
	}

	fragment, err := req.Delta.WorkspaceFragment()
	if err != nil {
		c.BadRequest(err.Error())
		return
	}

	err = h.sessionService.MergeDelta(ctx, sessionID, fragment)
	if errors.Is(err, services.ErrSessionNotFound) {
		c.NotFound("session not found")
		return
	}
	if err != nil {
		c.InternalServerError("failed to persist delta")
		return
	}

	h.h.BroadcastDelta(sessionID, req.ClientID, userID, req.Delta)

	_ = c.JSON(200, map[string]string{"message": "delta published"})
}

// SaveSnapshot checkpoints a client's full workspace state, replacing
// the durable snapshot wholesale. Clients call it before disconnecting
// so a later reconnect resyncs from storage rather than from peers.
func (h *StreamHandler) SaveSnapshot(c *drift.Context) {
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

	var req dto.SaveSnapshotRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	// The state must at least parse as a workspace; re-encoding it
	// strips any fields that are not part of the shared state.
	var w collab.Workspace
	if err := json.Unmarshal(req.State, &w); err != nil {
		c.BadRequest("invalid workspace state")
		return
	}
	state, err := json.Marshal(w)
	if err != nil {
		c.InternalServerError("failed to encode workspace state")
		return
	}

	ctx := context.Background()

	ok, err := h.sessionService.IsActiveParticipant(ctx, sessionID, userID)
	if err != nil {
		c.InternalServerError("failed to check participant")
		return
	}
	if !ok {
		c.NotFound("session not found")
		return
	}

	err = h.sessionService.PersistSnapshot(ctx, sessionID, state)
	if errors.Is(err, services.ErrSessionNotFound) {
		c.NotFound("session not found")
		return
	}
	if err != nil {
		c.InternalServerError("failed to persist snapshot")
		return
	}

	_ = c.JSON(200, map[string]string{"message": "snapshot saved"})
}
