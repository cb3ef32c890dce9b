package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

// Identifier resolves the stable user id for a freshly exchanged token.
type Identifier interface {
	UserID(ctx context.Context, tok *oauth2.Token) (string, error)
}

// IdentifierFunc adapts a function to Identifier.
type IdentifierFunc func(ctx context.Context, tok *oauth2.Token) (string, error)

func (f IdentifierFunc) UserID(ctx context.Context, tok *oauth2.Token) (string, error) {
	return f(ctx, tok)
}

// IDTokenIdentifier validates the OpenID Connect id_token returned with the
// access token and uses its subject as the user id.
type IDTokenIdentifier struct {
	Audience string // OAuth client id
}

func (i IDTokenIdentifier) UserID(ctx context.Context, tok *oauth2.Token) (string, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return "", errors.New("token response has no id_token")
	}
	payload, err := idtoken.Validate(ctx, raw, i.Audience)
	if err != nil {
		return "", fmt.Errorf("validate id_token: %w", err)
	}
	if payload.Subject == "" {
		return "", errors.New("id_token has no subject")
	}
	return payload.Subject, nil
}
