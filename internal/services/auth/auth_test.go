package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"jobboard/internal/domain/models"
	"jobboard/internal/storage"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const passDefaultLen = 10

type fakeStorage struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	byMail map[string]int64
	tokens map[string]*models.RefreshToken
	nextID int64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		users:  make(map[int64]*models.User),
		byMail: make(map[string]int64),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (f *fakeStorage) SaveUser(_ context.Context, email string, passHash []byte, role string, profile models.Profile) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byMail[email]; ok {
		return 0, storage.ErrUserAlreadyExists
	}
	f.nextID++
	now := time.Now().UTC()
	f.users[f.nextID] = &models.User{
		ID: f.nextID, Email: email, PassHash: passHash, Role: role,
		Active: true, CreatedAt: now, UpdatedAt: now, Profile: profile,
	}
	f.byMail[email] = f.nextID
	return f.nextID, nil
}

func (f *fakeStorage) User(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byMail[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u := *f.users[id]
	return &u, nil
}

func (f *fakeStorage) UserByID(_ context.Context, userID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStorage) SaveRefreshToken(_ context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tokenHash] = &models.RefreshToken{
		TokenHash: tokenHash, UserID: userID,
		CreatedAt: time.Now().UTC(), ExpiresAt: expiresAt,
	}
	return nil
}

func (f *fakeStorage) GetRefreshToken(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenHash]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStorage) RotateRefreshToken(_ context.Context, oldHash, newHash string, userID int64, newExpiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.tokens[oldHash]
	if !ok || old.RevokedAt != nil {
		return storage.ErrTokenNotFound
	}
	now := time.Now().UTC()
	old.RevokedAt = &now
	old.ReplacedByHash = &newHash
	f.tokens[newHash] = &models.RefreshToken{
		TokenHash: newHash, UserID: userID,
		CreatedAt: now, ExpiresAt: newExpiresAt,
	}
	return nil
}

func (f *fakeStorage) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tokens[tokenHash]; ok && t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
	}
	return nil
}

func (f *fakeStorage) RevokeAllByUser(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range f.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeStorage) activeTokenCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

func (f *fakeStorage) expireAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	past := time.Now().Add(-time.Hour)
	for _, t := range f.tokens {
		t.ExpiresAt = past
	}
}

func newTestAuth(t *testing.T) (*Auth, *fakeStorage) {
	t.Helper()
	store := newFakeStorage()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(logger, store, store, store, "test-secret", 15*time.Minute, 720*time.Hour, "test-pepper")
	return a, store
}

func randomPassword() string {
	return gofakeit.Password(true, true, true, true, false, passDefaultLen)
}

func register(t *testing.T, a *Auth, email, password, role string) (*models.User, *TokenPair) {
	t.Helper()
	user, pair, err := a.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: password,
		Role:     role,
	})
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return user, pair
}

func TestRegister(t *testing.T) {
	a, _ := newTestAuth(t)

	email := gofakeit.Email()
	user, pair := register(t, a, email, "secret1", models.RoleJobSeeker)

	assert.Equal(t, models.RoleJobSeeker, user.Role)
	assert.True(t, user.Active)

	// email is normalized and retrievable case-insensitively
	found, _, err := a.Login(context.Background(), "  "+strings.ToUpper(email)+" ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	// the fresh refresh token is immediately usable exactly once
	_, pair2, err := a.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, pair2.RefreshToken)

	_, _, err = a.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestRegister_Validation(t *testing.T) {
	a, _ := newTestAuth(t)

	tests := []struct {
		name     string
		email    string
		password string
		role     string
		wantErr  error
	}{
		{"bad email", "not-an-email", randomPassword(), models.RoleJobSeeker, ErrInvalidEmail},
		{"bad role", gofakeit.Email(), randomPassword(), "wizard", ErrInvalidRole},
		{"admin not self-registrable", gofakeit.Email(), randomPassword(), models.RoleAdmin, ErrInvalidRole},
		{"short password", gofakeit.Email(), "12345", models.RoleJobSeeker, ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := a.Register(context.Background(), RegisterInput{
				Email: tt.email, Password: tt.password, Role: tt.role,
			})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	a, _ := newTestAuth(t)

	email := gofakeit.Email()
	password := randomPassword()
	register(t, a, email, password, models.RoleEmployer)

	_, _, err := a.Register(context.Background(), RegisterInput{
		Email: email, Password: password, Role: models.RoleEmployer,
	})
	require.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLogin_WrongPasswordIndistinguishableFromUnknownEmail(t *testing.T) {
	a, _ := newTestAuth(t)

	email := gofakeit.Email()
	register(t, a, email, randomPassword(), models.RoleJobSeeker)

	_, _, errWrongPass := a.Login(context.Background(), email, "wrong-password")
	_, _, errNoUser := a.Login(context.Background(), gofakeit.Email(), "wrong-password")

	require.ErrorIs(t, errWrongPass, ErrInvalidCredentials)
	require.ErrorIs(t, errNoUser, ErrInvalidCredentials)
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	a, store := newTestAuth(t)

	email := gofakeit.Email()
	password := randomPassword()
	user, _ := register(t, a, email, password, models.RoleJobSeeker)

	store.mu.Lock()
	store.users[user.ID].Active = false
	store.mu.Unlock()

	_, _, err := a.Login(context.Background(), email, password)
	require.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestLogin_IndependentChains(t *testing.T) {
	a, store := newTestAuth(t)

	email := gofakeit.Email()
	password := randomPassword()
	user, _ := register(t, a, email, password, models.RoleJobSeeker)

	_, pairA, err := a.Login(context.Background(), email, password)
	require.NoError(t, err)
	_, pairB, err := a.Login(context.Background(), email, password)
	require.NoError(t, err)

	// register + two logins = three concurrently valid chains
	assert.Equal(t, 3, store.activeTokenCount(user.ID))

	// rotating one chain leaves the other usable
	_, _, err = a.Refresh(context.Background(), pairA.RefreshToken)
	require.NoError(t, err)
	_, _, err = a.Refresh(context.Background(), pairB.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_Rotation(t *testing.T) {
	a, _ := newTestAuth(t)

	// register user a@x.com / secret1 role job_seeker
	user, pair := register(t, a, "a@x.com", "secret1", models.RoleJobSeeker)
	assert.Equal(t, models.RoleJobSeeker, user.Role)

	// immediate refresh succeeds with a different token value
	_, pair2, err := a.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, pair2.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, pair2.RefreshToken)

	// the original, now-rotated value is rejected
	_, _, err = a.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)

	// the successor still works exactly once
	_, _, err = a.Refresh(context.Background(), pair2.RefreshToken)
	require.NoError(t, err)
	_, _, err = a.Refresh(context.Background(), pair2.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestRefresh_FailCases(t *testing.T) {
	a, _ := newTestAuth(t)

	_, _, err := a.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = a.Refresh(context.Background(), "token-that-does-not-exist")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	a, store := newTestAuth(t)

	_, pair := register(t, a, gofakeit.Email(), randomPassword(), models.RoleJobSeeker)

	store.expireAll()

	_, _, err := a.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenExpired)
}

func TestRefresh_RevokedTokenAlwaysFails(t *testing.T) {
	a, store := newTestAuth(t)

	_, pair := register(t, a, gofakeit.Email(), randomPassword(), models.RoleJobSeeker)

	a.Logout(context.Background(), pair.RefreshToken, "")

	_, _, err := a.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)

	// still fails once past expiry too
	store.expireAll()
	_, _, err = a.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestRefresh_DeactivatedOwner(t *testing.T) {
	a, store := newTestAuth(t)

	user, pair := register(t, a, gofakeit.Email(), randomPassword(), models.RoleJobSeeker)

	store.mu.Lock()
	store.users[user.ID].Active = false
	store.mu.Unlock()

	_, _, err := a.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestRefresh_RotationRaceSingleWinner(t *testing.T) {
	a, store := newTestAuth(t)

	user, pair := register(t, a, gofakeit.Email(), randomPassword(), models.RoleJobSeeker)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = a.Refresh(context.Background(), pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, ErrRefreshTokenRevoked)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, store.activeTokenCount(user.ID))
}

func TestLogout_NoTokensIsNoop(t *testing.T) {
	a, store := newTestAuth(t)

	user, _ := register(t, a, gofakeit.Email(), randomPassword(), models.RoleJobSeeker)
	before := store.activeTokenCount(user.ID)

	a.Logout(context.Background(), "", "")

	assert.Equal(t, before, store.activeTokenCount(user.ID))
}

func TestLogout_WithAccessTokenRevokesAllChains(t *testing.T) {
	a, store := newTestAuth(t)

	email := gofakeit.Email()
	password := randomPassword()
	user, _ := register(t, a, email, password, models.RoleJobSeeker)

	_, pairA, err := a.Login(context.Background(), email, password)
	require.NoError(t, err)
	_, pairB, err := a.Login(context.Background(), email, password)
	require.NoError(t, err)
	require.Equal(t, 3, store.activeTokenCount(user.ID))

	a.Logout(context.Background(), pairA.RefreshToken, pairA.AccessToken)

	assert.Equal(t, 0, store.activeTokenCount(user.ID))

	// every previously issued token is dead, not just the presented one
	_, _, err = a.Refresh(context.Background(), pairB.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestVerifyAccess(t *testing.T) {
	a, _ := newTestAuth(t)

	user, pair := register(t, a, gofakeit.Email(), randomPassword(), models.RoleEmployer)

	identity, err := a.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, models.RoleEmployer, identity.Role)

	_, err = a.VerifyAccess("garbage")
	require.Error(t, err)

	// tampering with the signature invalidates the token
	_, err = a.VerifyAccess(pair.AccessToken + "x")
	require.Error(t, err)
}

func TestPasswordsAreHashed(t *testing.T) {
	a, store := newTestAuth(t)

	password := randomPassword()
	user, _ := register(t, a, gofakeit.Email(), password, models.RoleJobSeeker)

	store.mu.Lock()
	hash := store.users[user.ID].PassHash
	store.mu.Unlock()

	assert.NotContains(t, string(hash), password)
	require.NoError(t, bcrypt.CompareHashAndPassword(hash, []byte(password)))
}

func TestRefreshTokensStoredHashed(t *testing.T) {
	a, store := newTestAuth(t)

	_, pair := register(t, a, gofakeit.Email(), randomPassword(), models.RoleJobSeeker)

	store.mu.Lock()
	defer store.mu.Unlock()
	_, rawStored := store.tokens[pair.RefreshToken]
	assert.False(t, rawStored, "raw refresh token must never be persisted")
	_, hashStored := store.tokens[a.hashRefreshToken(pair.RefreshToken)]
	assert.True(t, hashStored)
}
