package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"jobboard/internal/domain/models"
	"jobboard/internal/http/middleware"
	"jobboard/internal/services/auth"

	"github.com/gin-gonic/gin"
)

// Auth is the slice of the session service the transport needs.
type Auth interface {
	Register(ctx context.Context, in auth.RegisterInput) (*models.User, *auth.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.User, *auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.User, *auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken, accessToken string)
	UserByID(ctx context.Context, userID int64) (*models.User, error)
}

// CookieConfig controls the refresh-token cookie. The token travels only
// in an HTTP-only, same-site cookie, never in a response body.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	Secure bool
}

type Server struct {
	logger     *slog.Logger
	auth       Auth
	cookie     CookieConfig
	refreshTTL time.Duration
}

func NewServer(logger *slog.Logger, authService Auth, cookie CookieConfig, refreshTTL time.Duration) *Server {
	if cookie.Name == "" {
		cookie.Name = "refresh_token"
	}
	if cookie.Path == "" {
		cookie.Path = "/api/auth"
	}
	return &Server{
		logger:     logger,
		auth:       authService,
		cookie:     cookie,
		refreshTTL: refreshTTL,
	}
}

// RegisterRoutes mounts the auth endpoints under /api/auth.
func (s *Server) RegisterRoutes(r gin.IRouter, gate gin.HandlerFunc) {
	group := r.Group("/api/auth")
	group.POST("/register", s.register)
	group.POST("/login", s.login)
	group.POST("/refresh", s.refresh)
	group.POST("/logout", s.logout)
	group.GET("/me", gate, s.me)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`

	CompanyName        string `json:"company_name"`
	CompanyDescription string `json:"company_description"`
	CompanyWebsite     string `json:"company_website"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email, password, and role are required"})
		return
	}

	in := auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Profile: models.Profile{
			FirstName:          req.FirstName,
			LastName:           req.LastName,
			Phone:              req.Phone,
			CompanyName:        req.CompanyName,
			CompanyDescription: req.CompanyDescription,
			CompanyWebsite:     req.CompanyWebsite,
		},
	}

	user, pair, err := s.auth.Register(c.Request.Context(), in)
	if err != nil {
		s.mapRegisterErr(c, err)
		return
	}

	s.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusCreated, gin.H{
		"message":      "User registered successfully",
		"access_token": pair.AccessToken,
		"user":         userView(user),
	})
}

func (s *Server) mapRegisterErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format"})
	case errors.Is(err, auth.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be either job_seeker or employer"})
	case errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters long"})
	case errors.Is(err, auth.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	user, pair, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountDeactivated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Account is deactivated"})
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		}
		return
	}

	s.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"message":      "Login successful",
		"access_token": pair.AccessToken,
		"user":         userView(user),
	})
}

// refresh rotates the chain. Absent, expired, revoked and raced tokens all
// produce the same response; the distinctions live in the service logs.
func (s *Server) refresh(c *gin.Context) {
	raw, _ := c.Cookie(s.cookie.Name)

	user, pair, err := s.auth.Refresh(c.Request.Context(), raw)
	if err != nil {
		s.clearRefreshCookie(c)
		switch {
		case errors.Is(err, auth.ErrInvalidRefreshToken),
			errors.Is(err, auth.ErrRefreshTokenExpired),
			errors.Is(err, auth.ErrRefreshTokenRevoked),
			errors.Is(err, auth.ErrAccountDeactivated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Token refresh failed"})
		}
		return
	}

	s.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"access_token": pair.AccessToken,
		"user":         userView(user),
	})
}

// logout always succeeds, cookie or not.
func (s *Server) logout(c *gin.Context) {
	raw, _ := c.Cookie(s.cookie.Name)
	access := middleware.BearerToken(c)

	s.auth.Logout(c.Request.Context(), raw, access)

	s.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *Server) me(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	user, err := s.auth.UserByID(c.Request.Context(), identity.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userView(user)})
}

func (s *Server) setRefreshCookie(c *gin.Context, raw string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    raw,
		Path:     s.cookie.Path,
		Domain:   s.cookie.Domain,
		MaxAge:   int(s.refreshTTL.Seconds()),
		Expires:  time.Now().Add(s.refreshTTL).UTC(),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     s.cookie.Path,
		Domain:   s.cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func userView(u *models.User) gin.H {
	return gin.H{
		"id":                  u.ID,
		"email":               u.Email,
		"role":                u.Role,
		"is_active":           u.Active,
		"created_at":          u.CreatedAt.Format(time.RFC3339),
		"updated_at":          u.UpdatedAt.Format(time.RFC3339),
		"first_name":          u.Profile.FirstName,
		"last_name":           u.Profile.LastName,
		"phone":               u.Profile.Phone,
		"company_name":        u.Profile.CompanyName,
		"company_description": u.Profile.CompanyDescription,
		"company_website":     u.Profile.CompanyWebsite,
	}
}
