package dto

import (
	"time"

	"github.com/google/uuid"
)

type AcquireLockRequest struct {
	ResourceID string `json:"resource_id"`
}

type RefreshLockRequest struct {
	ResourceID string `json:"resource_id"`
}

type ReleaseLockRequest struct {
	ResourceID string `json:"resource_id"`
}

type LockResultResponse struct {
	Granted   bool       `json:"granted"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// RefreshAfterSeconds is the cadence the holder should heartbeat
	// at to keep the lease alive. Only set when the lock was granted.
	RefreshAfterSeconds int        `json:"refresh_after_seconds,omitempty"`
	HolderID            *uuid.UUID `json:"holder_id,omitempty"`
	HolderName          string     `json:"holder_name,omitempty"`
	HolderRole          string     `json:"holder_role,omitempty"`
}

type RefreshLockResponse struct {
	Refreshed bool `json:"refreshed"`
}

type ReleaseLockResponse struct {
	Released bool `json:"released"`
}

type LockResponse struct {
	ResourceID string    `json:"resource_id"`
	HolderID   uuid.UUID `json:"holder_id"`
	HolderName string    `json:"holder_name"`
	HolderRole string    `json:"holder_role"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
