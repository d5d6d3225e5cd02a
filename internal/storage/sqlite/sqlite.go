package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobboard/internal/domain/models"
	"jobboard/internal/storage"

	"github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, email string, passHash []byte, role string, profile models.Profile) (int64, error) {
	const op = "storage.sqlite.SaveUser"
	stmt, err := s.db.Prepare(`
		INSERT INTO users (email, pass_hash, role, is_active, created_at, updated_at,
			first_name, last_name, phone, company_name, company_description, company_website)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()
	now := time.Now().UTC()
	result, err := stmt.ExecContext(ctx, email, passHash, role, now, now,
		profile.FirstName, profile.LastName, profile.Phone,
		profile.CompanyName, profile.CompanyDescription, profile.CompanyWebsite)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return result.LastInsertId()
}

func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.User"
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, pass_hash, role, is_active, created_at, updated_at,
			first_name, last_name, phone, company_name, company_description, company_website
		FROM users WHERE email = ?`, email)
	return scanUser(row, op)
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.sqlite.UserByID"
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, pass_hash, role, is_active, created_at, updated_at,
			first_name, last_name, phone, company_name, company_description, company_website
		FROM users WHERE id = ?`, userID)
	return scanUser(row, op)
}

func scanUser(row *sql.Row, op string) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.PassHash, &user.Role, &user.Active,
		&user.CreatedAt, &user.UpdatedAt,
		&user.Profile.FirstName, &user.Profile.LastName, &user.Profile.Phone,
		&user.Profile.CompanyName, &user.Profile.CompanyDescription, &user.Profile.CompanyWebsite)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// SaveRefreshToken stores a new refresh token hash.
func (s *Storage) SaveRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	const op = "storage.sqlite.SaveRefreshToken"
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`, tokenHash, userID, time.Now().UTC(), expiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by its hash, revoked or not.
func (s *Storage) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.GetRefreshToken"
	row := s.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, created_at, expires_at, revoked_at, replaced_by_hash
		FROM refresh_tokens WHERE token_hash = ?`, tokenHash)

	var t models.RefreshToken
	var revokedAt sql.NullTime
	var replacedBy sql.NullString
	err := row.Scan(&t.TokenHash, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &revokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if replacedBy.Valid {
		t.ReplacedByHash = &replacedBy.String
	}
	return &t, nil
}

// RotateRefreshToken revokes the old token and inserts its successor.
// The revoke is conditional on the token still being active, so of two
// concurrent rotations of the same token exactly one succeeds; the loser
// gets storage.ErrTokenNotFound.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash, newHash string, userID int64, newExpiresAt time.Time) error {
	const op = "storage.sqlite.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?, replaced_by_hash = ?
		WHERE token_hash = ? AND revoked_at IS NULL`, now, newHash, oldHash)
	if err != nil {
		return fmt.Errorf("%s: revoke old: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`, newHash, userID, now, newExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: insert new: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeRefreshToken marks a single token revoked. Idempotent.
func (s *Storage) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const op = "storage.sqlite.RevokeRefreshToken"
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL`, time.Now().UTC(), tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SeedAdmin inserts an admin user unless the email is already taken (for the migrator).
func (s *Storage) SeedAdmin(ctx context.Context, email string, passHash []byte) error {
	const op = "storage.sqlite.SeedAdmin"
	if _, err := s.SaveUser(ctx, email, passHash, models.RoleAdmin, models.Profile{}); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeAllByUser marks every active token of the user revoked.
func (s *Storage) RevokeAllByUser(ctx context.Context, userID int64) error {
	const op = "storage.sqlite.RevokeAllByUser"
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL`, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
