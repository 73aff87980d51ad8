package handlers

import (
	"context"

	"github.com/coauthorhq/coauthor-api/internal/collab"
	"github.com/coauthorhq/coauthor-api/internal/middleware"
	"github.com/coauthorhq/coauthor-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type LockHandler struct {
	lockService LockServiceInterface
}

func NewLockHandler(lockService LockServiceInterface) *LockHandler {
	return &LockHandler{lockService: lockService}
}

// Acquire tries to take the section lock. A grant carries the expiry
// and the cadence to heartbeat at; a denial is a 200 with
// granted=false and the current holder's identity, because contention
// is ordinary UI state, not an error.
func (h *LockHandler) Acquire(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.AcquireLockRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.ResourceID == "" {
		c.BadRequest("resource_id is required")
		return
	}

	result, err := h.lockService.Acquire(context.Background(), req.ResourceID, userID)
	if err != nil {
		c.InternalServerError("failed to acquire lock")
		return
	}

	resp := dto.LockResultResponse{
		Granted:    result.Granted,
		HolderID:   result.HolderID,
		HolderName: result.HolderName,
		HolderRole: result.HolderRole,
	}
	if result.Granted {
		resp.ExpiresAt = &result.ExpiresAt
		resp.RefreshAfterSeconds = int(collab.HeartbeatInterval(h.lockService.TTL()).Seconds())
	}
	_ = c.JSON(200, resp)
}

func (h *LockHandler) Refresh(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.RefreshLockRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.ResourceID == "" {
		c.BadRequest("resource_id is required")
		return
	}

	refreshed, err := h.lockService.Refresh(context.Background(), req.ResourceID, userID)
	if err != nil {
		c.InternalServerError("failed to refresh lock")
		return
	}

	_ = c.JSON(200, dto.RefreshLockResponse{Refreshed: refreshed})
}

func (h *LockHandler) Release(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.ReleaseLockRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.ResourceID == "" {
		c.BadRequest("resource_id is required")
		return
	}

	released, err := h.lockService.Release(context.Background(), req.ResourceID, userID)
	if err != nil {
		c.InternalServerError("failed to release lock")
		return
	}

	_ = c.JSON(200, dto.ReleaseLockResponse{Released: released})
}

// List renders who is editing what across one document's sections.
func (h *LockHandler) List(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	groupID := c.QueryParam("group")
	if groupID == "" {
		c.BadRequest("group is required")
		return
	}

	locks, err := h.lockService.ListActive(context.Background(), groupID)
	if err != nil {
		c.InternalServerError("failed to list locks")
		return
	}

	response := make([]dto.LockResponse, len(locks))
	for i, l := range locks {
		response[i] = dto.LockResponse{
			ResourceID: l.ResourceID,
			HolderID:   l.HolderID,
			HolderName: l.HolderName,
			HolderRole: l.HolderRole,
			AcquiredAt: l.AcquiredAt,
			ExpiresAt:  l.ExpiresAt,
		}
	}
	_ = c.JSON(200, response)
}
