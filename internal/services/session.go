package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coauthorhq/coauthor-api/internal/database"
	"github.com/coauthorhq/coauthor-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrNotHost            = errors.New("only the host can end a session")
	ErrNotParticipant     = errors.New("user is not an active participant")
	ErrCodeSpaceExhausted = errors.New("could not generate a unique session code")
)

const maxCodeAttempts = 5

type SessionService struct {
	db          *database.DB
	lifetime    time.Duration
	idleTimeout time.Duration
}

func NewSessionService(db *database.DB, lifetime, idleTimeout time.Duration) *SessionService {
	return &SessionService{db: db, lifetime: lifetime, idleTimeout: idleTimeout}
}

// Create opens a session for a shared draft and seats the host. The
// code is drawn at random and retried against the partial unique index
// on active codes, so codes from ended sessions are free to come back.
func (s *SessionService) Create(ctx context.Context, resourceID string, hostID uuid.UUID, initialState json.RawMessage) (*models.CollabSession, error) {
	if len(initialState) == 0 {
		initialState = json.RawMessage(`{}`)
	}

	var hostName, hostRole string
	err := s.db.Pool.QueryRow(ctx, `
		SELECT name, role FROM users WHERE id = $1
	`, hostID).Scan(&hostName, &hostRole)
	if err != nil {
		return nil, fmt.Errorf("failed to load host: %w", err)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var session models.CollabSession
	inserted := false
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateSessionCode()
		if err != nil {
			return nil, err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO collab_sessions (code, resource_id, host_id, workspace_state, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) WHERE is_active DO NOTHING
			RETURNING id, code, resource_id, host_id, is_active, workspace_state,
				created_at, last_activity_at, expires_at
		`, code, resourceID, hostID, initialState, time.Now().Add(s.lifetime)).Scan(
			&session.ID, &session.Code, &session.ResourceID, &session.HostID,
			&session.IsActive, &session.WorkspaceState,
			&session.CreatedAt, &session.LastActivityAt, &session.ExpiresAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			continue // code collided with another active session
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		inserted = true
		break
	}
	if !inserted {
		return nil, ErrCodeSpaceExhausted
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO session_participants (session_id, user_id, display_name, role, is_host, status)
		VALUES ($1, $2, $3, $4, TRUE, $5)
	`, session.ID, hostID, hostName, hostRole, models.ParticipantActive)
	if err != nil {
		return nil, fmt.Errorf("failed to seat host: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &session, nil
}

// Join seats a user in the active session behind a code. The returned
// session carries the last persisted workspace state, which the client
// adopts wholesale as its starting point.
func (s *SessionService) Join(ctx context.Context, code string, userID uuid.UUID, displayName, role string) (*models.CollabSession, error) {
	code = NormalizeSessionCode(code)

	var session models.CollabSession
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, code, resource_id, host_id, is_active, workspace_state,
			created_at, last_activity_at, expires_at
		FROM collab_sessions
		WHERE code = $1 AND is_active
	`, code).Scan(
		&session.ID, &session.Code, &session.ResourceID, &session.HostID,
		&session.IsActive, &session.WorkspaceState,
		&session.CreatedAt, &session.LastActivityAt, &session.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if !session.ExpiresAt.After(time.Now()) {
		return nil, ErrSessionExpired
	}

	// Rejoining flips a left participant back to active rather than
	// adding a second row; a user has one row per session.
	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO session_participants (session_id, user_id, display_name, role, is_host, status)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			left_at = NULL
	`, session.ID, userID, displayName, role, models.ParticipantActive)
	if err != nil {
		return nil, fmt.Errorf("failed to seat participant: %w", err)
	}

	// The join itself is activity; return the row as the touch left it
	// so the client schedules against the extended expiry, not the one
	// read above.
	expiresAt, err := s.Touch(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	session.ExpiresAt = expiresAt

	return &session, nil
}

// Leave marks the participant as left. When the host leaves, the whole
// session ends: there is no host migration, the room dies with its
// host. Returns whether the session was ended.
func (s *SessionService) Leave(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	var isHost bool
	err := s.db.Pool.QueryRow(ctx, `
		UPDATE session_participants SET status = $3, left_at = NOW()
		WHERE session_id = $1 AND user_id = $2 AND status = $4
		RETURNING is_host
	`, sessionID, userID, models.ParticipantLeft, models.ParticipantActive).Scan(&isHost)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotParticipant
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark participant left: %w", err)
	}

	if !isHost {
		return false, nil
	}

	if err := s.deactivate(ctx, sessionID); err != nil {
		return false, err
	}
	return true, nil
}

// End is the host-initiated termination. Anyone else gets ErrNotHost.
func (s *SessionService) End(ctx context.Context, sessionID, callerID uuid.UUID) error {
	var hostID uuid.UUID
	var isActive bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT host_id, is_active FROM collab_sessions WHERE id = $1
	`, sessionID).Scan(&hostID, &isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if hostID != callerID {
		return ErrNotHost
	}
	if !isActive {
		return ErrSessionNotFound
	}

	return s.deactivate(ctx, sessionID)
}

// deactivate flips the session inactive and closes out the roster.
// Sessions are never resurrected; the code becomes reusable.
func (s *SessionService) deactivate(ctx context.Context, sessionID uuid.UUID) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE collab_sessions SET is_active = FALSE WHERE id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE session_participants SET status = $2, left_at = NOW()
		WHERE session_id = $1 AND status = $3
	`, sessionID, models.ParticipantLeft, models.ParticipantActive)
	if err != nil {
		return fmt.Errorf("failed to close roster: %w", err)
	}

	return tx.Commit(ctx)
}

// PersistSnapshot replaces the durable workspace state wholesale.
// The per-delta merge keeps the snapshot current during normal
// editing; this is the checkpoint a client writes with its full state,
// typically just before it disconnects, so a reconnect resyncs from
// storage instead of from peers.
func (s *SessionService) PersistSnapshot(ctx context.Context, sessionID uuid.UUID, state json.RawMessage) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE collab_sessions SET workspace_state = $2, last_activity_at = NOW()
		WHERE id = $1 AND is_active
	`, sessionID, state)
	if err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// MergeDelta folds one published delta's workspace fragment into the
// durable snapshot. The shallow jsonb concatenation replaces just the
// fragment's field and is atomic per statement, so two racing deltas
// for different fields both land regardless of order.
func (s *SessionService) MergeDelta(ctx context.Context, sessionID uuid.UUID, fragment json.RawMessage) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE collab_sessions
		SET workspace_state = workspace_state || $2::jsonb,
			last_activity_at = NOW(),
			expires_at = $3
		WHERE id = $1 AND is_active
	`, sessionID, fragment, time.Now().Add(s.lifetime))
	if err != nil {
		return fmt.Errorf("failed to merge delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Touch records activity and pushes the expiry window out, returning
// the expiry now on the row.
func (s *SessionService) Touch(ctx context.Context, sessionID uuid.UUID) (time.Time, error) {
	var expiresAt time.Time
	err := s.db.Pool.QueryRow(ctx, `
		UPDATE collab_sessions SET last_activity_at = NOW(), expires_at = $2
		WHERE id = $1 AND is_active
		RETURNING expires_at
	`, sessionID, time.Now().Add(s.lifetime)).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrSessionNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to touch session: %w", err)
	}
	return expiresAt, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID uuid.UUID) (*models.CollabSession, error) {
	var session models.CollabSession
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, code, resource_id, host_id, is_active, workspace_state,
			created_at, last_activity_at, expires_at
		FROM collab_sessions WHERE id = $1
	`, sessionID).Scan(
		&session.ID, &session.Code, &session.ResourceID, &session.HostID,
		&session.IsActive, &session.WorkspaceState,
		&session.CreatedAt, &session.LastActivityAt, &session.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return &session, nil
}

func (s *SessionService) IsActiveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM session_participants sp
			JOIN collab_sessions cs ON sp.session_id = cs.id
			WHERE sp.session_id = $1 AND sp.user_id = $2
				AND sp.status = $3 AND cs.is_active
		)
	`, sessionID, userID, models.ParticipantActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return exists, nil
}

// Participants returns the full roster including users who left, in
// seating order.
func (s *SessionService) Participants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, session_id, user_id, display_name, role, is_host, status, joined_at, left_at
		FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.DisplayName, &p.Role, &p.IsHost, &p.Status, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// ReapStale deactivates sessions past their expiry or idle beyond the
// inactivity threshold, and returns their ids so the caller can fan a
// terminal event out to anyone still connected. The deactivation and
// the roster close-out commit together, same as deactivate: a session
// is never left inactive with active participant rows.
func (s *SessionService) ReapStale(ctx context.Context) ([]uuid.UUID, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE collab_sessions SET is_active = FALSE
		WHERE is_active AND (expires_at <= NOW() OR last_activity_at <= $1)
		RETURNING id
	`, time.Now().Add(-s.idleTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to reap stale sessions: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to reap stale sessions: %w", err)
	}

	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE session_participants SET status = $1, left_at = NOW()
		WHERE status = $2 AND session_id = ANY($3)
	`, models.ParticipantLeft, models.ParticipantActive, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to close rosters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}
