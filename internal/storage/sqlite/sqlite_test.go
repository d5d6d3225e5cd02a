package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobboard/internal/domain/models"
	"jobboard/internal/storage"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "1_init.up.sql"))
	require.NoError(t, err)
	_, err = s.db.Exec(string(schema))
	require.NoError(t, err)

	return s
}

func saveUser(t *testing.T, s *Storage, email string) int64 {
	t.Helper()
	id, err := s.SaveUser(context.Background(), email, []byte("hash"), models.RoleJobSeeker, models.Profile{
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
	})
	require.NoError(t, err)
	return id
}

func TestSaveUser_DuplicateEmail(t *testing.T) {
	s := newTestStorage(t)

	email := gofakeit.Email()
	saveUser(t, s, email)

	_, err := s.SaveUser(context.Background(), email, []byte("hash"), models.RoleEmployer, models.Profile{})
	require.ErrorIs(t, err, storage.ErrUserAlreadyExists)
}

func TestUserLookups(t *testing.T) {
	s := newTestStorage(t)

	email := gofakeit.Email()
	id := saveUser(t, s, email)

	byEmail, err := s.User(context.Background(), email)
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.ID)
	assert.True(t, byEmail.Active)
	assert.Equal(t, models.RoleJobSeeker, byEmail.Role)
	assert.NotEmpty(t, byEmail.Profile.FirstName)

	byID, err := s.UserByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, email, byID.Email)

	_, err = s.User(context.Background(), "missing@example.com")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	userID := saveUser(t, s, gofakeit.Email())
	expires := time.Now().UTC().Add(time.Hour)

	require.NoError(t, s.SaveRefreshToken(ctx, "hash-1", userID, expires))

	tok, err := s.GetRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, tok.Revoked())
	assert.Equal(t, userID, tok.UserID)

	_, err = s.GetRefreshToken(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestRotateRefreshToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	userID := saveUser(t, s, gofakeit.Email())
	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.SaveRefreshToken(ctx, "old", userID, expires))

	require.NoError(t, s.RotateRefreshToken(ctx, "old", "new", userID, expires))

	old, err := s.GetRefreshToken(ctx, "old")
	require.NoError(t, err)
	assert.True(t, old.Revoked())
	require.NotNil(t, old.ReplacedByHash)
	assert.Equal(t, "new", *old.ReplacedByHash)

	successor, err := s.GetRefreshToken(ctx, "new")
	require.NoError(t, err)
	assert.False(t, successor.Revoked())

	// a second rotation of the same token loses the conditional update
	err = s.RotateRefreshToken(ctx, "old", "new-2", userID, expires)
	require.ErrorIs(t, err, storage.ErrTokenNotFound)

	// and its would-be successor was not created
	_, err = s.GetRefreshToken(ctx, "new-2")
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestRevokeRefreshToken_Idempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	userID := saveUser(t, s, gofakeit.Email())
	require.NoError(t, s.SaveRefreshToken(ctx, "hash-1", userID, time.Now().UTC().Add(time.Hour)))

	require.NoError(t, s.RevokeRefreshToken(ctx, "hash-1"))
	first, err := s.GetRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, first.RevokedAt)
	revokedAt := *first.RevokedAt

	// revoking again neither errors nor moves the timestamp
	require.NoError(t, s.RevokeRefreshToken(ctx, "hash-1"))
	second, err := s.GetRefreshToken(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, revokedAt.Equal(*second.RevokedAt))

	// revoking an unknown token is a no-op too
	require.NoError(t, s.RevokeRefreshToken(ctx, "missing"))
}

func TestRevokeAllByUser(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	userA := saveUser(t, s, gofakeit.Email())
	userB := saveUser(t, s, gofakeit.Email())
	expires := time.Now().UTC().Add(time.Hour)

	require.NoError(t, s.SaveRefreshToken(ctx, "a-1", userA, expires))
	require.NoError(t, s.SaveRefreshToken(ctx, "a-2", userA, expires))
	require.NoError(t, s.SaveRefreshToken(ctx, "b-1", userB, expires))

	require.NoError(t, s.RevokeAllByUser(ctx, userA))

	for _, hash := range []string{"a-1", "a-2"} {
		tok, err := s.GetRefreshToken(ctx, hash)
		require.NoError(t, err)
		assert.True(t, tok.Revoked(), hash)
	}

	other, err := s.GetRefreshToken(ctx, "b-1")
	require.NoError(t, err)
	assert.False(t, other.Revoked())
}

func TestSeedAdmin(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SeedAdmin(ctx, "admin@jobboard.local", []byte("hash")))

	admin, err := s.User(ctx, "admin@jobboard.local")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	// seeding twice is fine
	require.NoError(t, s.SeedAdmin(ctx, "admin@jobboard.local", []byte("hash")))
}
