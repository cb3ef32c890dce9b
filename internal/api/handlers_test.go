package api

import (
    "bytes"
    "context"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "golang.org/x/oauth2"

    "cartoglass/internal/config"
)

type recorded struct {
    Method, Path, Auth string
    Body               []byte
    Query              map[string]string
}

// fakeUpstream records every request and answers from a per-path table.
type fakeUpstream struct {
    srv   *httptest.Server
    mu    sync.Mutex
    reqs  []recorded
    fails map[string]int // path -> status to return
    reply map[string]string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
    t.Helper()
    f := &fakeUpstream{fails: map[string]int{}, reply: map[string]string{}}
    f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        b, _ := io.ReadAll(r.Body)
        q := map[string]string{}
        for k := range r.URL.Query() { q[k] = r.URL.Query().Get(k) }
        f.mu.Lock()
        f.reqs = append(f.reqs, recorded{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: b, Query: q})
        code, failing := f.fails[r.URL.Path]
        body, ok := f.reply[r.URL.Path]
        f.mu.Unlock()
        if failing { w.WriteHeader(code); _, _ = w.Write([]byte(`{"error":"boom"}`)); return }
        if !ok { body = `{"id":"x1"}` }
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write([]byte(body))
    }))
    t.Cleanup(f.srv.Close)
    return f
}

func (f *fakeUpstream) respond(path, body string) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.reply[path] = body
}

func (f *fakeUpstream) fail(path string, code int) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.fails[path] = code
}

func (f *fakeUpstream) requests(path string) []recorded {
    f.mu.Lock()
    defer f.mu.Unlock()
    out := []recorded{}
    for _, r := range f.reqs { if r.Path == path { out = append(out, r) } }
    return out
}

type testEnv struct {
    s      *Server
    mirror *fakeUpstream
    carto  *fakeUpstream
}

func newTestServer(t *testing.T) *testEnv {
    t.Helper()
    mirror := newFakeUpstream(t)
    carto := newFakeUpstream(t)
    cfg := config.Config{
        Port:               "8080",
        GoogleClientID:     "cid",
        GoogleClientSecret: "csecret",
        OAuthRedirectURL:   "http://localhost:8080/oauth2callback",
        VerifyToken:        "I_AM_YOUR_FATHER",
        CallbackURL:        "https://example.org/subscription",
        StaticBaseURL:      "https://example.org",
        MirrorBaseURL:      mirror.srv.URL + "/mirror/v1/",
        CartoDBAPIKey:      "carto-key",
        CartoDBEndpoint:    carto.srv.URL + "/api/v2/sql",
        CartoDBTable:       "cartoglass",
        SessionSecret:      "test-secret",
        StateTTL:           time.Minute,
    }
    s, err := NewServer(cfg)
    if err != nil { t.Fatalf("NewServer: %v", err) }
    s.Guess = func() int { return 7 }
    t.Cleanup(func() { _ = s.Close() })
    return &testEnv{s: s, mirror: mirror, carto: carto}
}

func (e *testEnv) storeUser(t *testing.T, userID string) {
    t.Helper()
    tok := &oauth2.Token{AccessToken: "at-" + userID, RefreshToken: "rt", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
    if err := e.s.Credentials.PutCredential(context.Background(), userID, tok); err != nil { t.Fatalf("PutCredential: %v", err) }
}

func postNotification(s *Server, body string) *httptest.ResponseRecorder {
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/subscription", strings.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    s.SubscriptionHandler(rr, req)
    return rr
}

func TestHealthReady(t *testing.T) {
    e := newTestServer(t)
    rr := httptest.NewRecorder()
    e.s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    e.s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestLanding(t *testing.T) {
    e := newTestServer(t)
    rr := httptest.NewRecorder()
    e.s.LandingHandler(rr, httptest.NewRequest(http.MethodGet, "/", nil))
    if rr.Code != 200 || !strings.Contains(rr.Body.String(), `href="/install"`) {
        t.Fatalf("landing: %d %s", rr.Code, rr.Body.String())
    }
    rr = httptest.NewRecorder()
    e.s.LandingHandler(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
    if rr.Code != 404 { t.Fatalf("unknown path: got %d", rr.Code) }
}

func TestSubscriptionWrongVerifyToken(t *testing.T) {
    e := newTestServer(t)
    e.storeUser(t, "u1")
    rr := postNotification(e.s, `{"collection":"locations","itemId":"latest","verifyToken":"NOPE","userToken":"u1"}`)
    if rr.Code != http.StatusForbidden { t.Fatalf("want 403, got %d", rr.Code) }
    if n := len(e.mirror.requests("/mirror/v1/locations/latest")) + len(e.carto.requests("/api/v2/sql")); n != 0 {
        t.Fatalf("no outbound calls expected, got %d", n)
    }
}

func TestSubscriptionMissingCredential(t *testing.T) {
    e := newTestServer(t)
    rr := postNotification(e.s, `{"collection":"locations","itemId":"latest","verifyToken":"I_AM_YOUR_FATHER","userToken":"ghost"}`)
    if rr.Code != http.StatusUnauthorized { t.Fatalf("want 401, got %d", rr.Code) }
}

func TestSubscriptionMalformedBody(t *testing.T) {
    e := newTestServer(t)
    rr := postNotification(e.s, `{not json`)
    if rr.Code != http.StatusBadRequest { t.Fatalf("want 400, got %d", rr.Code) }
    rr = httptest.NewRecorder()
    e.s.SubscriptionHandler(rr, httptest.NewRequest(http.MethodGet, "/subscription", nil))
    if rr.Code != http.StatusMethodNotAllowed { t.Fatalf("GET: want 405, got %d", rr.Code) }
}

func TestSubscriptionLocationWritesOnce(t *testing.T) {
    e := newTestServer(t)
    e.storeUser(t, "u1")
    e.mirror.respond("/mirror/v1/locations/latest", `{"id":"latest","latitude":40.4168,"longitude":-3.7038,"accuracy":30,"displayName":"Joe's","address":"1 O'Neil St"}`)

    rr := postNotification(e.s, `{"collection":"locations","itemId":"latest","verifyToken":"I_AM_YOUR_FATHER","userToken":"u1"}`)
    if rr.Code != 200 { t.Fatalf("want 200, got %d", rr.Code) }

    gets := e.mirror.requests("/mirror/v1/locations/latest")
    if len(gets) != 1 || gets[0].Auth != "Bearer at-u1" {
        t.Fatalf("location fetch: %+v", gets)
    }
    writes := e.carto.requests("/api/v2/sql")
    if len(writes) != 1 { t.Fatalf("want exactly one CartoDB write, got %d", len(writes)) }
    q := writes[0].Query["q"]
    want := "INSERT INTO cartoglass (the_geom, accuracy, address, displayname, user_id) VALUES (ST_GeomFromText('POINT(-3.7038 40.4168)', 4326), 30, '1 ONeil St', 'Joes', 'u1');"
    if q != want { t.Fatalf("query:\n got %s\nwant %s", q, want) }
    if writes[0].Query["api_key"] != "carto-key" { t.Fatalf("api_key: %q", writes[0].Query["api_key"]) }
}

func TestSubscriptionLocationFetchErrorStillOK(t *testing.T) {
    e := newTestServer(t)
    e.storeUser(t, "u1")
    e.mirror.fail("/mirror/v1/locations/latest", 500)
    rr := postNotification(e.s, `{"collection":"locations","itemId":"latest","verifyToken":"I_AM_YOUR_FATHER","userToken":"u1"}`)
    if rr.Code != 200 { t.Fatalf("want 200, got %d", rr.Code) }
    if rr.Body.Len() != 0 { t.Fatalf("want empty body, got %q", rr.Body.String()) }
    if n := len(e.carto.requests("/api/v2/sql")); n != 0 { t.Fatalf("no CartoDB write expected, got %d", n) }
}

func TestSubscriptionLocationThrottled(t *testing.T) {
    e := newTestServer(t)
    e.storeUser(t, "u1")
    e.s.Throttle = NewLocationThrottle(time.Hour)
    body := `{"collection":"locations","itemId":"latest","verifyToken":"I_AM_YOUR_FATHER","userToken":"u1"}`
    for i := 0; i < 3; i++ {
        if rr := postNotification(e.s, body); rr.Code != 200 { t.Fatalf("call %d: got %d", i, rr.Code) }
    }
    if n := len(e.carto.requests("/api/v2/sql")); n != 1 { t.Fatalf("want 1 write while throttled, got %d", n) }
}

func TestSubscriptionTimelineGuess(t *testing.T) {
    e := newTestServer(t)
    e.storeUser(t, "u1")
    body := `{"collection":"timeline","itemId":"card1","verifyToken":"I_AM_YOUR_FATHER","userToken":"u1",
        "userActions":[{"type":"SHARE"},{"type":"CUSTOM","payload":"GUESS_A_NUMBER"},{"type":"CUSTOM","payload":"OTHER"}]}`
    rr := postNotification(e.s, body)
    if rr.Code != 200 { t.Fatalf("want 200, got %d", rr.Code) }

    inserts := e.mirror.requests("/mirror/v1/timeline")
    if len(inserts) != 1 { t.Fatalf("want exactly one reply card, got %d", len(inserts)) }
    var card struct {
        Text      string `json:"text"`
        MenuItems []struct{ Action string `json:"action"` } `json:"menuItems"`
    }
    if err := json.Unmarshal(inserts[0].Body, &card); err != nil { t.Fatalf("decode card: %v", err) }
    if card.Text != "This is the number I had in mind: 7" { t.Fatalf("text: %q", card.Text) }
    if len(card.MenuItems) != 1 || card.MenuItems[0].Action != "DELETE" { t.Fatalf("menu: %+v", card.MenuItems) }
}

func TestSubscriptionTimelineWithoutGuess(t *testing.T) {
    e := newTestServer(t)
    e.storeUser(t, "u1")
    rr := postNotification(e.s, `{"collection":"timeline","verifyToken":"I_AM_YOUR_FATHER","userToken":"u1","userActions":[{"type":"DELETE"}]}`)
    if rr.Code != 200 { t.Fatalf("want 200, got %d", rr.Code) }
    if n := len(e.mirror.requests("/mirror/v1/timeline")); n != 0 { t.Fatalf("want no card, got %d", n) }
}

func installRequest(e *testEnv, userID string) *http.Request {
    rr := httptest.NewRecorder()
    e.s.OAuth.Sessions.Set(rr, userID)
    req := httptest.NewRequest(http.MethodGet, "/install", nil)
    for _, c := range rr.Result().Cookies() { req.AddCookie(c) }
    return req
}

func TestInstallAllGood(t *testing.T) {
    e := newTestServer(t)
    e.storeUser(t, "u1")
    rr := httptest.NewRecorder()
    e.s.OAuth.Required(http.HandlerFunc(e.s.InstallHandler)).ServeHTTP(rr, installRequest(e, "u1"))
    if rr.Code != 200 { t.Fatalf("install: got %d", rr.Code) }
    if !strings.Contains(rr.Body.String(), `class="ok"`) { t.Fatalf("expected success page: %s", rr.Body.String()) }

    cards := e.mirror.requests("/mirror/v1/timeline")
    if len(cards) != 1 || !bytes.Contains(cards[0].Body, []byte("GUESS_A_NUMBER")) { t.Fatalf("welcome card: %+v", cards) }
    subs := e.mirror.requests("/mirror/v1/subscriptions")
    if len(subs) != 2 { t.Fatalf("want 2 subscriptions, got %d", len(subs)) }
    var got []string
    for _, r := range subs {
        var sub struct{ Collection, VerifyToken, UserToken, CallbackURL string }
        if err := json.Unmarshal(r.Body, &sub); err != nil { t.Fatalf("decode sub: %v", err) }
        if sub.VerifyToken != "I_AM_YOUR_FATHER" || sub.UserToken != "u1" || sub.CallbackURL != "https://example.org/subscription" {
            t.Fatalf("bad subscription: %+v", sub)
        }
        got = append(got, sub.Collection)
    }
    if got[0] != "timeline" || got[1] != "locations" { t.Fatalf("collections: %v", got) }
}

func TestInstallFailureRendersFlag(t *testing.T) {
    e := newTestServer(t)
    e.storeUser(t, "u1")
    e.mirror.fail("/mirror/v1/subscriptions", 403)
    rr := httptest.NewRecorder()
    e.s.OAuth.Required(http.HandlerFunc(e.s.InstallHandler)).ServeHTTP(rr, installRequest(e, "u1"))
    if rr.Code != 200 { t.Fatalf("install: got %d", rr.Code) }
    if !strings.Contains(rr.Body.String(), `class="error"`) { t.Fatalf("expected failure page: %s", rr.Body.String()) }
    // stops at the first failed subscription
    if n := len(e.mirror.requests("/mirror/v1/subscriptions")); n != 1 { t.Fatalf("want 1 subscription attempt, got %d", n) }
}

func TestInstallRedirectsWithoutSession(t *testing.T) {
    e := newTestServer(t)
    rr := httptest.NewRecorder()
    e.s.OAuth.Required(http.HandlerFunc(e.s.InstallHandler)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/install", nil))
    if rr.Code != http.StatusFound { t.Fatalf("want 302, got %d", rr.Code) }
    if !strings.HasPrefix(rr.Header().Get("Location"), "https://accounts.google.com/") {
        t.Fatalf("unexpected redirect: %s", rr.Header().Get("Location"))
    }
}

func TestOpenAPIJSON(t *testing.T) {
    e := newTestServer(t)
    rr := httptest.NewRecorder()
    e.s.OpenAPIJSONHandler(rr, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
    if rr.Code != 200 { t.Fatalf("openapi.json: got %d", rr.Code) }
    var doc struct{ Paths map[string]any `json:"paths"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil { t.Fatalf("decode: %v", err) }
    if _, ok := doc.Paths["/subscription"]; !ok { t.Fatalf("missing /subscription path") }
}

func TestDebugJSONHidesSecrets(t *testing.T) {
    e := newTestServer(t)
    rr := httptest.NewRecorder()
    e.s.DebugJSON(rr, httptest.NewRequest(http.MethodGet, "/debug/info", nil))
    if strings.Contains(rr.Body.String(), "csecret") || strings.Contains(rr.Body.String(), "carto-key") {
        t.Fatalf("debug output leaks secrets: %s", rr.Body.String())
    }
}
