package app

import (
	"context"
	"log/slog"
	"time"

	"jobboard/internal/app/httpapp"
	"jobboard/internal/config"
	authhttp "jobboard/internal/http/auth"
	"jobboard/internal/http/middleware"
	"jobboard/internal/services/auth"
	"jobboard/internal/storage/mongodb"
	"jobboard/internal/storage/sqlite"
)

type App struct {
	HTTPSrv *httpapp.App
}

// authStorage is the full storage surface the session service consumes.
// Both backends implement it.
type authStorage interface {
	auth.UserSaver
	auth.UserProvider
	auth.TokenLedger
}

func New(
	logger *slog.Logger,
	cfg *config.Config,
) *App {
	var store authStorage
	switch cfg.Storage.Driver {
	case "mongodb":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := mongodb.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			panic(err)
		}
		store = s
	default:
		s, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			panic(err)
		}
		store = s
	}

	authService := auth.New(
		logger,
		store,
		store,
		store,
		cfg.Tokens.Secret,
		cfg.Tokens.AccessTTL,
		cfg.Tokens.RefreshTTL,
		cfg.Tokens.RefreshPepper,
	)

	authServer := authhttp.NewServer(
		logger,
		authService,
		authhttp.CookieConfig{
			Name:   cfg.HTTP.CookieName,
			Domain: cfg.HTTP.CookieDomain,
			Secure: cfg.HTTP.CookieSecure,
		},
		cfg.Tokens.RefreshTTL,
	)
	gate := middleware.RequireIdentity(authService)

	httpApp := httpapp.New(logger, authServer, gate, cfg.HTTP.Port, cfg.HTTP.Timeout)

	return &App{
		HTTPSrv: httpApp,
	}
}
