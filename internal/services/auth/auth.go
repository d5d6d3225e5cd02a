package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"jobboard/internal/domain/models"
	"jobboard/internal/lib/jwt"
	"jobboard/internal/lib/sl"
	"jobboard/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type Auth struct {
	logger          *slog.Logger
	userSaver       UserSaver
	userProvider    UserProvider
	tokenLedger     TokenLedger
	tokenSecret     string
	tokenTTL        time.Duration
	refreshTokenTTL time.Duration
	refreshPepper   string
}

type UserSaver interface {
	SaveUser(
		ctx context.Context,
		email string,
		passHash []byte,
		role string,
		profile models.Profile,
	) (uid int64, err error)
}

type UserProvider interface {
	User(
		ctx context.Context,
		email string,
	) (user *models.User, err error)
	UserByID(
		ctx context.Context,
		userID int64,
	) (user *models.User, err error)
}

// TokenLedger is the only state the auth core mutates. Rotation relies on
// RotateRefreshToken being conditional on the old token still being active.
type TokenLedger interface {
	SaveRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash, newHash string, userID int64, newExpiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllByUser(ctx context.Context, userID int64) error
}

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountDeactivated  = errors.New("account is deactivated")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrInvalidRole         = errors.New("invalid role")
	ErrWeakPassword        = errors.New("password too short")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
)

// RegisterInput carries the statically validated registration payload.
type RegisterInput struct {
	Email    string
	Password string
	Role     string
	Profile  models.Profile
}

// TokenPair is what a successful register/login/refresh hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenLedger TokenLedger,
	tokenSecret string,
	tokenTTL time.Duration,
	refreshTokenTTL time.Duration,
	refreshPepper string,
) *Auth {
	return &Auth{
		logger:          logger,
		userSaver:       userSaver,
		userProvider:    userProvider,
		tokenLedger:     tokenLedger,
		tokenSecret:     tokenSecret,
		tokenTTL:        tokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		refreshPepper:   refreshPepper,
	}
}

// Register validates the input, creates the user and starts a fresh
// refresh chain for it.
func (a *Auth) Register(ctx context.Context, in RegisterInput) (*models.User, *TokenPair, error) {
	const op = "auth.Register"
	log := a.logger.With(slog.String("op", op))

	email := normalizeEmail(in.Email)
	if !emailRe.MatchString(email) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}
	if in.Role != models.RoleJobSeeker && in.Role != models.RoleEmployer {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}
	if len(in.Password) < minPasswordLen {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	log.Info("register request", slog.String("email", email), slog.String("role", in.Role))

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := a.userSaver.SaveUser(ctx, email, passHash, in.Role, in.Profile)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists", sl.Err(err))
			return nil, nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		log.Error("failed to load created user", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.issueTokens(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("userID", userID))

	return user, pair, nil
}

// Login authenticates the user and starts a new independent refresh chain;
// chains from earlier logins stay valid, one per device.
func (a *Auth) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op))
	log.Info("login request")

	user, err := a.userProvider.User(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.Active {
		log.Warn("account deactivated", slog.Int64("userID", user.ID))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountDeactivated)
	}

	pair, err := a.issueTokens(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("userID", user.ID))

	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair (rotation). The
// presented token is revoked in the same conditional update that admits
// the rotation, so concurrent calls on one token produce a single winner.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*models.User, *TokenPair, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	if refreshToken == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	tokenHash := a.hashRefreshToken(refreshToken)

	tokenDoc, err := a.tokenLedger.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("refresh token not found")
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	// A revoked token being presented again is a possible theft signal:
	// either the legitimate client replayed it or someone else holds it.
	if tokenDoc.Revoked() {
		log.Warn("revoked refresh token reused", slog.Int64("userID", tokenDoc.UserID))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenRevoked)
	}

	if tokenDoc.Expired(time.Now()) {
		log.Warn("refresh token expired", slog.Int64("userID", tokenDoc.UserID))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenExpired)
	}

	user, err := a.userProvider.UserByID(ctx, tokenDoc.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("token owner no longer exists", slog.Int64("userID", tokenDoc.UserID))
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Active {
		log.Warn("account deactivated", slog.Int64("userID", user.ID))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountDeactivated)
	}

	accessToken, err := jwt.NewToken(user, a.tokenSecret, a.tokenTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	newRefreshRaw, err := generateRefreshTokenRaw()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	newHash := a.hashRefreshToken(newRefreshRaw)

	err = a.tokenLedger.RotateRefreshToken(ctx, tokenHash, newHash, user.ID, time.Now().Add(a.refreshTokenTTL))
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			// Lost the rotation race: another call revoked this token first.
			log.Warn("concurrent rotation detected", slog.Int64("userID", user.ID))
			return nil, nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenRevoked)
		}
		log.Error("failed to rotate refresh token", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.Int64("userID", user.ID))

	return user, &TokenPair{AccessToken: accessToken, RefreshToken: newRefreshRaw}, nil
}

// Logout revokes the presented refresh token and, if a valid access token
// accompanies it, every refresh chain of that user. It never reports
// failure: logout is terminal and idempotent, internal errors are only
// logged.
func (a *Auth) Logout(ctx context.Context, refreshToken, accessToken string) {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op))
	log.Info("logout request")

	if refreshToken != "" {
		if err := a.tokenLedger.RevokeRefreshToken(ctx, a.hashRefreshToken(refreshToken)); err != nil {
			log.Error("failed to revoke refresh token", sl.Err(err))
		}
	}

	if accessToken != "" {
		identity, err := jwt.ParseToken(accessToken, a.tokenSecret)
		if err != nil {
			log.Warn("logout with invalid access token", sl.Err(err))
			return
		}
		if err := a.tokenLedger.RevokeAllByUser(ctx, identity.UserID); err != nil {
			log.Error("failed to revoke user tokens", sl.Err(err), slog.Int64("userID", identity.UserID))
		}
	}
}

// VerifyAccess checks signature and expiry of an access token. Stateless
// on purpose: no ledger reads on the hot path.
func (a *Auth) VerifyAccess(accessToken string) (*jwt.Identity, error) {
	const op = "auth.VerifyAccess"

	identity, err := jwt.ParseToken(accessToken, a.tokenSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

// UserByID exposes the owning identity for the /me handler.
func (a *Auth) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "auth.UserByID"

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// issueTokens mints an access token and opens a new refresh chain.
func (a *Auth) issueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	accessToken, err := jwt.NewToken(user, a.tokenSecret, a.tokenTTL)
	if err != nil {
		return nil, err
	}

	refreshRaw, err := a.generateAndSaveRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshRaw}, nil
}

// generateAndSaveRefreshToken creates a new refresh token, stores its hash, and returns the raw token.
func (a *Auth) generateAndSaveRefreshToken(ctx context.Context, userID int64) (string, error) {
	rawToken, err := generateRefreshTokenRaw()
	if err != nil {
		return "", err
	}

	tokenHash := a.hashRefreshToken(rawToken)
	expiresAt := time.Now().Add(a.refreshTokenTTL)

	if err := a.tokenLedger.SaveRefreshToken(ctx, tokenHash, userID, expiresAt); err != nil {
		return "", err
	}

	return rawToken, nil
}

// hashRefreshToken computes SHA-256 hash of the token with pepper.
func (a *Auth) hashRefreshToken(token string) string {
	h := sha256.New()
	h.Write([]byte(token + a.refreshPepper))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// generateRefreshTokenRaw generates a cryptographically secure random token.
func generateRefreshTokenRaw() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
