package storage

import "errors"

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// ErrTokenNotFound covers absent, already-revoked and raced refresh
	// tokens alike; callers must not be able to tell them apart.
	ErrTokenNotFound = errors.New("refresh token not found")
)
