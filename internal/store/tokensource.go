package store

import (
	"context"
	"log"
	"sync"

	"golang.org/x/oauth2"
)

// PersistingTokenSource returns a TokenSource that starts from current and
// writes every newly obtained token back to creds under userID.
func PersistingTokenSource(ctx context.Context, creds CredentialStore, userID string, base oauth2.TokenSource, current *oauth2.Token) oauth2.TokenSource {
	ps := &persistingSource{ctx: ctx, creds: creds, userID: userID, base: base}
	if current != nil {
		ps.last = current.AccessToken
	}
	return oauth2.ReuseTokenSource(current, ps)
}

type persistingSource struct {
	ctx    context.Context
	creds  CredentialStore
	userID string
	base   oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		// a failed write only costs another refresh next time
		if err := p.creds.PutCredential(p.ctx, p.userID, tok); err != nil {
			log.Printf("persist refreshed token for user_id %s: %v", p.userID, err)
		} else {
			p.last = tok.AccessToken
		}
	}
	return tok, nil
}
