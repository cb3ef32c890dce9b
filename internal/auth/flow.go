// Package auth runs the Google OAuth2 flow that authorizes the service to
// act on a user's timeline and locations.
package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"cartoglass/internal/store"
)

const CallbackPath = "/oauth2callback"

var Scopes = []string{
	"https://www.googleapis.com/auth/glass.timeline",
	"https://www.googleapis.com/auth/glass.location",
	// id_token subject is the user id
	"openid",
}

type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Credentials  store.CredentialStore
	States       store.StateStore
	Sessions     *Sessions
	Identity     Identifier    // defaults to IDTokenIdentifier
	StateTTL     time.Duration // defaults to 10m
	// HTTPClient, when set, is used by the token exchange and refreshes.
	HTTPClient *http.Client
}

type Flow struct {
	OAuth       *oauth2.Config
	Credentials store.CredentialStore
	States      store.StateStore
	Sessions    *Sessions
	Identity    Identifier
	StateTTL    time.Duration
	HTTPClient  *http.Client
}

func NewFlow(o Options) *Flow {
	f := &Flow{
		OAuth: &oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			RedirectURL:  o.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       Scopes,
		},
		Credentials: o.Credentials,
		States:      o.States,
		Sessions:    o.Sessions,
		Identity:    o.Identity,
		StateTTL:    o.StateTTL,
		HTTPClient:  o.HTTPClient,
	}
	if f.Identity == nil {
		f.Identity = IDTokenIdentifier{Audience: o.ClientID}
	}
	if f.StateTTL <= 0 {
		f.StateTTL = 10 * time.Minute
	}
	return f
}

// Begin records a pending state and redirects the browser to the consent page.
func (f *Flow) Begin(w http.ResponseWriter, r *http.Request, returnTo string) {
	if !isLocalPath(returnTo) {
		returnTo = "/"
	}
	state, err := f.States.CreateState(r.Context(), returnTo, f.StateTTL)
	if err != nil {
		log.Printf("oauth: create state: %v", err)
		http.Error(w, "failed to start authorization", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, f.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusFound)
}

// Callback completes the flow: it exchanges the code, stores the credential
// record and the session, then returns the browser to where Begin was called.
func (f *Flow) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		log.Printf("oauth: authorization denied: %s", e)
		http.Error(w, "authorization failed: "+e, http.StatusBadRequest)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}
	returnTo, err := f.States.ConsumeState(r.Context(), state)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("oauth: consume state: %v", err)
		}
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	ctx := f.clientContext(r.Context())
	tok, err := f.OAuth.Exchange(ctx, code)
	if err != nil {
		log.Printf("oauth: exchange: %v", err)
		http.Error(w, "failed to exchange authorization code", http.StatusBadRequest)
		return
	}
	userID, err := f.Identity.UserID(ctx, tok)
	if err != nil {
		log.Printf("oauth: identify user: %v", err)
		http.Error(w, "failed to identify user", http.StatusBadRequest)
		return
	}
	// Google only issues a refresh token on first consent; keep the old one
	if tok.RefreshToken == "" {
		if prev, err := f.Credentials.GetCredential(r.Context(), userID); err == nil {
			tok.RefreshToken = prev.RefreshToken
		}
	}
	if err := f.Credentials.PutCredential(r.Context(), userID, tok); err != nil {
		log.Printf("oauth: store credential for user_id %s: %v", userID, err)
		http.Error(w, "failed to store credential", http.StatusInternalServerError)
		return
	}
	f.Sessions.Set(w, userID)
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// Required gates next behind a completed flow. Requests without a valid
// session or stored credential are sent through Begin.
func (f *Flow) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := f.Sessions.UserID(r); ok {
			tok, err := f.Credentials.GetCredential(r.Context(), userID)
			if err == nil {
				ctx := WithUser(r.Context(), userID, f.Client(r.Context(), userID, tok))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if !errors.Is(err, store.ErrNotFound) {
				log.Printf("oauth: load credential for user_id %s: %v", userID, err)
			}
		}
		f.Begin(w, r, r.URL.RequestURI())
	})
}

// Client returns an HTTP client authorized with tok. Refreshed tokens are
// written back to the credential store.
func (f *Flow) Client(ctx context.Context, userID string, tok *oauth2.Token) *http.Client {
	ctx = f.clientContext(ctx)
	ts := store.PersistingTokenSource(ctx, f.Credentials, userID, f.OAuth.TokenSource(ctx, tok), tok)
	return oauth2.NewClient(ctx, ts)
}

func (f *Flow) clientContext(ctx context.Context) context.Context {
	if f.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
	}
	return ctx
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

type ctxKeyUser struct{}

type user struct {
	id     string
	client *http.Client
}

// WithUser attaches the authorized user to ctx.
func WithUser(ctx context.Context, userID string, client *http.Client) context.Context {
	return context.WithValue(ctx, ctxKeyUser{}, user{id: userID, client: client})
}

// UserFromContext returns the user attached by Required.
func UserFromContext(ctx context.Context) (userID string, client *http.Client, ok bool) {
	u, ok := ctx.Value(ctxKeyUser{}).(user)
	if !ok {
		return "", nil, false
	}
	return u.id, u.client, true
}
