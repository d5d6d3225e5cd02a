package jwt

import (
	"errors"
	"fmt"
	"time"

	"jobboard/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is what a verified access token proves: who the caller is and
// what role they hold. Nothing else is trusted from the token.
type Identity struct {
	UserID int64
	Email  string
	Role   string
}

// NewToken creates an access JWT with identity claims and the given TTL.
func NewToken(user *models.User, secret string, duration time.Duration) (string, error) {
	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.MapClaims{
			"uid":   user.ID,
			"email": user.Email,
			"role":  user.Role,
			"exp":   time.Now().Add(duration).Unix(),
		})
	return token.SignedString([]byte(secret))
}

// ParseToken validates signature and expiry and returns the embedded
// identity. It deliberately consults no storage; a revoked session keeps a
// valid access token until its natural expiry.
func ParseToken(tokenString string, secret string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	uid, ok := claims["uid"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return &Identity{
		UserID: int64(uid),
		Email:  email,
		Role:   role,
	}, nil
}
