package store

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// CredentialStore keeps one OAuth token per user. Records are never deleted.
type CredentialStore interface {
	PutCredential(ctx context.Context, userID string, tok *oauth2.Token) error
	GetCredential(ctx context.Context, userID string) (*oauth2.Token, error)
}

// StateStore holds pending OAuth authorization states. A state can be consumed once.
type StateStore interface {
	CreateState(ctx context.Context, returnTo string, ttl time.Duration) (string, error)
	ConsumeState(ctx context.Context, state string) (returnTo string, err error)
}

var ErrNotFound = errors.New("not found")
