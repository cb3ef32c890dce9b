// Package api implements HTTP handlers for the CartoGlass service.
package api

import (
	"context"
	"crypto/rand"
	"html/template"
	"io"
	"log"
	mrand "math/rand"
	"strings"

	"cartoglass/internal/auth"
	"cartoglass/internal/cartodb"
	"cartoglass/internal/config"
	"cartoglass/internal/mirror"
	"cartoglass/internal/store"
)

type Server struct {
	Config      config.Config
	Credentials store.CredentialStore
	States      store.StateStore
	OAuth       *auth.Flow
	Mirror      mirror.Factory
	Carto       *cartodb.Client
	Throttle    *LocationThrottle
	Templates   *template.Template
	// Guess returns the number sent back for GUESS_A_NUMBER, in [1,10].
	Guess func() int

	closers []io.Closer
}

// NewServer wires a Server from cfg. If DATABASE_URL is unset, credentials are
// kept in memory; if REDIS_URL is unset, OAuth states are too.
func NewServer(cfg config.Config) (*Server, error) {
	var creds store.CredentialStore
	var closers []io.Closer
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		creds = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := pg.Migrate(context.Background()); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		creds = pg
		closers = append(closers, pg)
	}

	var states store.StateStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rs, err := store.NewRedisStates(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		states = rs
		closers = append(closers, rs)
	} else {
		states = store.NewMemoryStates()
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Printf("SESSION_SECRET not set; sessions will not survive a restart")
	}

	mf, err := mirror.NewFactory(cfg.MirrorBaseURL)
	if err != nil {
		return nil, err
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	flow := auth.NewFlow(auth.Options{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Credentials:  creds,
		States:       states,
		Sessions:     auth.NewSessions(secret, cfg.SecureCookies),
		StateTTL:     cfg.StateTTL,
	})

	return &Server{
		Config:      cfg,
		Credentials: creds,
		States:      states,
		OAuth:       flow,
		Mirror:      mf,
		Carto:       cartodb.New(cfg.CartoDBEndpoint, cfg.CartoDBAPIKey),
		Throttle:    NewLocationThrottle(cfg.LocationMinInterval),
		Templates:   tmpl,
		Guess:       func() int { return mrand.Intn(10) + 1 },
		closers:     closers,
	}, nil
}

// Close releases the database and Redis connections.
func (s *Server) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
