package models

import (
	"time"

	"github.com/google/uuid"
)

// SectionLock is a time-boxed exclusive hold on one document section.
// At most one unexpired lock exists per resource id.
type SectionLock struct {
	ResourceID string    `json:"resource_id"`
	HolderID   uuid.UUID `json:"holder_id"`
	HolderName string    `json:"holder_name"`
	HolderRole string    `json:"holder_role"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// LockResult is the outcome of an acquire attempt. A denial carries the
// current holder's identity so the UI can say "locked by X" instead of
// a bare no.
type LockResult struct {
	Granted    bool       `json:"granted"`
	ExpiresAt  time.Time  `json:"expires_at,omitempty"`
	HolderID   *uuid.UUID `json:"holder_id,omitempty"`
	HolderName string     `json:"holder_name,omitempty"`
	HolderRole string     `json:"holder_role,omitempty"`
}
