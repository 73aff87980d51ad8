package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coauthorhq/coauthor-api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLockService(t *testing.T) (*LockService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	db := &database.DB{Pool: mock}
	return NewLockService(db, 3*time.Minute), mock
}

func TestLockService_Acquire_Granted(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()
	userID := uuid.New()
	expiresAt := time.Now().Add(3 * time.Minute)

	rows := pgxmock.NewRows([]string{"expires_at"}).AddRow(expiresAt)
	mock.ExpectQuery(`INSERT INTO section_locks`).
		WithArgs("doc-1/summary", userID, pgxmock.AnyArg()).
		WillReturnRows(rows)

	result, err := svc.Acquire(ctx, "doc-1/summary", userID)

	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, expiresAt, result.ExpiresAt)
	assert.Nil(t, result.HolderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Acquire_Contention_ReturnsHolderIdentity(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()
	userID := uuid.New()
	holderID := uuid.New()

	mock.ExpectQuery(`INSERT INTO section_locks`).
		WithArgs("doc-1/summary", userID, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	holderRows := pgxmock.NewRows([]string{"holder_id", "name", "role"}).
		AddRow(holderID, "Dana Reviewer", "senior rater")
	mock.ExpectQuery(`SELECT l.holder_id, u.name, u.role`).
		WithArgs("doc-1/summary").
		WillReturnRows(holderRows)

	result, err := svc.Acquire(ctx, "doc-1/summary", userID)

	require.NoError(t, err)
	assert.False(t, result.Granted)
	require.NotNil(t, result.HolderID)
	assert.Equal(t, holderID, *result.HolderID)
	assert.Equal(t, "Dana Reviewer", result.HolderName)
	assert.Equal(t, "senior rater", result.HolderRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Acquire_RetriesWhenHolderVanishes(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()
	userID := uuid.New()
	expiresAt := time.Now().Add(3 * time.Minute)

	// First round: upsert loses to an unexpired lock, but the holder
	// releases before the identity read.
	mock.ExpectQuery(`INSERT INTO section_locks`).
		WithArgs("doc-1/summary", userID, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT l.holder_id, u.name, u.role`).
		WithArgs("doc-1/summary").
		WillReturnError(pgx.ErrNoRows)

	// Second round wins.
	rows := pgxmock.NewRows([]string{"expires_at"}).AddRow(expiresAt)
	mock.ExpectQuery(`INSERT INTO section_locks`).
		WithArgs("doc-1/summary", userID, pgxmock.AnyArg()).
		WillReturnRows(rows)

	result, err := svc.Acquire(ctx, "doc-1/summary", userID)

	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Acquire_StorageErrorPropagates(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()
	userID := uuid.New()

	mock.ExpectQuery(`INSERT INTO section_locks`).
		WithArgs("doc-1/summary", userID, pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	_, err := svc.Acquire(ctx, "doc-1/summary", userID)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Refresh_Success(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()
	userID := uuid.New()

	mock.ExpectExec(`UPDATE section_locks SET expires_at`).
		WithArgs("doc-1/summary", userID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	refreshed, err := svc.Refresh(ctx, "doc-1/summary", userID)

	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Refresh_FalseWhenExpiredOrStolen(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()
	userID := uuid.New()

	mock.ExpectExec(`UPDATE section_locks SET expires_at`).
		WithArgs("doc-1/summary", userID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	refreshed, err := svc.Refresh(ctx, "doc-1/summary", userID)

	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Release_OnlyHolder(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()
	userID := uuid.New()

	mock.ExpectExec(`DELETE FROM section_locks`).
		WithArgs("doc-1/summary", userID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	released, err := svc.Release(ctx, "doc-1/summary", userID)

	require.NoError(t, err)
	assert.False(t, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_ListActive(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()
	holderID := uuid.New()
	now := time.Now()

	rows := pgxmock.NewRows([]string{"resource_id", "holder_id", "name", "role", "acquired_at", "expires_at"}).
		AddRow("doc-1/intro", holderID, "Dana Reviewer", "senior rater", now, now.Add(time.Minute)).
		AddRow("doc-1/summary", holderID, "Dana Reviewer", "senior rater", now, now.Add(2*time.Minute))

	mock.ExpectQuery(`SELECT l.resource_id, l.holder_id`).
		WithArgs("doc-1").
		WillReturnRows(rows)

	locks, err := svc.ListActive(ctx, "doc-1")

	require.NoError(t, err)
	require.Len(t, locks, 2)
	assert.Equal(t, "doc-1/intro", locks[0].ResourceID)
	assert.Equal(t, "Dana Reviewer", locks[0].HolderName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_ReapExpired(t *testing.T) {
	svc, mock := setupLockService(t)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM section_locks WHERE expires_at`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	reaped, err := svc.ReapExpired(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(3), reaped)
	assert.NoError(t, mock.ExpectationsWereMet())
}
