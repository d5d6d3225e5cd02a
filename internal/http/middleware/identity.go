package middleware

import (
	"net/http"
	"strings"

	"jobboard/internal/lib/jwt"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// TokenVerifier is the stateless access-token check; no storage behind it.
type TokenVerifier interface {
	VerifyAccess(accessToken string) (*jwt.Identity, error)
}

// RequireIdentity guards protected routes. It yields the identity to the
// handler; resource-ownership checks stay with the route itself.
func RequireIdentity(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}

		identity, err := verifier.VerifyAccess(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the identity set by RequireIdentity.
func IdentityFromContext(c *gin.Context) (*jwt.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*jwt.Identity)
	return identity, ok
}

// BearerToken extracts the access token from the Authorization header, if any.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
