package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coauthorhq/coauthor-api/internal/database"
	"github.com/coauthorhq/coauthor-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LockService owns the section_locks table. Contention is an expected
// outcome and comes back as a LockResult, never an error; errors are
// reserved for the storage layer failing, which must not be masked.
type LockService struct {
	db  *database.DB
	ttl time.Duration
}

func NewLockService(db *database.DB, ttl time.Duration) *LockService {
	return &LockService{db: db, ttl: ttl}
}

func (s *LockService) TTL() time.Duration {
	return s.ttl
}

// Acquire takes the lock on a section if it is free, expired, or
// already held by the caller (re-acquire extends). Exactly one caller
// wins a contention race: the conditional upsert against the primary
// key is the single atomic step.
func (s *LockService) Acquire(ctx context.Context, resourceID string, userID uuid.UUID) (*models.LockResult, error) {
	for {
		var expiresAt time.Time
		err := s.db.Pool.QueryRow(ctx, `
			INSERT INTO section_locks (resource_id, holder_id, acquired_at, expires_at)
			VALUES ($1, $2, NOW(), $3)
			ON CONFLICT (resource_id) DO UPDATE SET
				holder_id = EXCLUDED.holder_id,
				acquired_at = NOW(),
				expires_at = EXCLUDED.expires_at
			WHERE section_locks.expires_at <= NOW()
				OR section_locks.holder_id = EXCLUDED.holder_id
			RETURNING expires_at
		`, resourceID, userID, time.Now().Add(s.ttl)).Scan(&expiresAt)
		if err == nil {
			return &models.LockResult{Granted: true, ExpiresAt: expiresAt}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}

		// Upsert matched an unexpired lock held by someone else.
		// Fetch who, so the caller can surface "locked by X".
		var result models.LockResult
		var holderID uuid.UUID
		err = s.db.Pool.QueryRow(ctx, `
			SELECT l.holder_id, u.name, u.role
			FROM section_locks l
			JOIN users u ON l.holder_id = u.id
			WHERE l.resource_id = $1 AND l.expires_at > NOW()
		`, resourceID).Scan(&holderID, &result.HolderName, &result.HolderRole)
		if errors.Is(err, pgx.ErrNoRows) {
			// Holder released or expired between the two statements;
			// the lock is free again.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read lock holder: %w", err)
		}
		result.HolderID = &holderID
		return &result, nil
	}
}

// Refresh extends the lease for the current holder. A false return
// means the lease expired or was taken over; the caller must
// re-acquire and may need to warn the user their edits raced.
func (s *LockService) Refresh(ctx context.Context, resourceID string, userID uuid.UUID) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE section_locks SET expires_at = $3
		WHERE resource_id = $1 AND holder_id = $2 AND expires_at > NOW()
	`, resourceID, userID, time.Now().Add(s.ttl))
	if err != nil {
		return false, fmt.Errorf("failed to refresh lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release drops the lock if the caller holds it; anyone else's lock is
// left alone.
func (s *LockService) Release(ctx context.Context, resourceID string, userID uuid.UUID) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		DELETE FROM section_locks WHERE resource_id = $1 AND holder_id = $2
	`, resourceID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to release lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActive returns the unexpired locks under one resource group
// (section ids are "<groupId>/<sectionKey>") with holder identity, for
// the "who is editing what" view. Expiry is filtered here regardless
// of whether the reaper has run.
func (s *LockService) ListActive(ctx context.Context, resourceGroupID string) ([]models.SectionLock, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT l.resource_id, l.holder_id, u.name, u.role, l.acquired_at, l.expires_at
		FROM section_locks l
		JOIN users u ON l.holder_id = u.id
		WHERE l.resource_id LIKE $1 || '/%' AND l.expires_at > NOW()
		ORDER BY l.resource_id
	`, resourceGroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	defer rows.Close()

	var locks []models.SectionLock
	for rows.Next() {
		var l models.SectionLock
		if err := rows.Scan(&l.ResourceID, &l.HolderID, &l.HolderName, &l.HolderRole, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, nil
}

// ReapExpired removes dead rows. Acquire, Refresh and ListActive all
// re-check expiry inline, so the sweep cadence affects tidiness, not
// correctness.
func (s *LockService) ReapExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM section_locks WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired locks: %w", err)
	}
	return tag.RowsAffected(), nil
}
