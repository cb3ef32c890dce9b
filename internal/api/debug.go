package api

import (
    "encoding/json"
    "net/http"
    "time"

    "cartoglass/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    c := s.Config
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "PORT":                  c.Port,
            "OAUTH_REDIRECT_URL":    c.OAuthRedirectURL,
            "CALLBACK_URL":          c.CallbackURL,
            "MIRROR_BASE_URL":       c.MirrorBaseURL,
            "CARTODB_ENDPOINT":      c.CartoDBEndpoint,
            "CARTODB_TABLE":         c.CartoDBTable,
            "LOCATION_MIN_INTERVAL": c.LocationMinInterval.String(),
            "HAS_DATABASE_URL":      c.DatabaseURL != "",
            "HAS_REDIS_URL":         c.RedisURL != "",
            "HAS_SESSION_SECRET":    c.SessionSecret != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
