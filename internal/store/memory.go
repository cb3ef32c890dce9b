package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"cartoglass/internal/model"
)

// Memory is an in-memory CredentialStore used when no DATABASE_URL is set.
type Memory struct {
	mu    sync.Mutex
	creds map[string]model.Credential // userId -> credential
}

func NewMemory() *Memory {
	return &Memory{creds: map[string]model.Credential{}}
}

func (m *Memory) PutCredential(ctx context.Context, userID string, tok *oauth2.Token) error {
	if userID == "" || tok == nil {
		return errors.New("user id and token required")
	}
	cp := *tok
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[userID] = model.Credential{UserID: userID, Token: &cp, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *Memory) GetCredential(ctx context.Context, userID string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c.Token
	return &cp, nil
}

type pendingState struct {
	returnTo  string
	expiresAt time.Time
}

// MemoryStates is an in-memory StateStore used when no REDIS_URL is set.
type MemoryStates struct {
	mu    sync.Mutex
	m     map[string]pendingState
	clock func() time.Time
}

func NewMemoryStates() *MemoryStates {
	return &MemoryStates{m: map[string]pendingState{}, clock: time.Now}
}

func (s *MemoryStates) CreateState(ctx context.Context, returnTo string, ttl time.Duration) (string, error) {
	state := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	// drop expired entries so abandoned flows do not accumulate
	for k, v := range s.m {
		if now.After(v.expiresAt) {
			delete(s.m, k)
		}
	}
	s.m[state] = pendingState{returnTo: returnTo, expiresAt: now.Add(ttl)}
	return state, nil
}

func (s *MemoryStates) ConsumeState(ctx context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[state]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.m, state)
	if s.clock().After(p.expiresAt) {
		return "", ErrNotFound
	}
	return p.returnTo, nil
}
