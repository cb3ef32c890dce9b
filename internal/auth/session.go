package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const SessionCookie = "cartoglass_session"

// Sessions issues and reads the signed cookie that remembers which user
// completed the OAuth flow in this browser.
type Sessions struct {
	Secret []byte
	Secure bool
	MaxAge time.Duration
}

func NewSessions(secret []byte, secure bool) *Sessions {
	return &Sessions{Secret: secret, Secure: secure, MaxAge: 30 * 24 * time.Hour}
}

// Set writes the session cookie for userID.
func (s *Sessions) Set(w http.ResponseWriter, userID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.encode(userID),
		Path:     "/",
		MaxAge:   int(s.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserID returns the user id from a valid session cookie.
func (s *Sessions) UserID(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	return s.decode(c.Value)
}

func (s *Sessions) encode(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID)) + "." + SignHMAC(s.Secret, []byte(userID))
}

func (s *Sessions) decode(v string) (string, bool) {
	enc, sig, ok := strings.Cut(v, ".")
	if !ok {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	if !VerifyHMAC(s.Secret, raw, sig) {
		return "", false
	}
	return string(raw), true
}

// VerifyHMAC checks an HMAC-SHA256 signature over body using the shared secret.
func VerifyHMAC(secret, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, b)
}

// SignHMAC returns lowercase hex of HMAC-SHA256 over body.
func SignHMAC(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return fmt.Sprintf("%x", mac.Sum(nil))
}
