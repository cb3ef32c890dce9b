package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strconv"
    "syscall"
    "time"

    "cartoglass/internal/api"
    "cartoglass/internal/auth"
    "cartoglass/internal/config"
    "cartoglass/internal/metrics"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    srvDeps, err := api.NewServer(cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    defer srvDeps.Close()
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Glassware
    mux.HandleFunc("/", srvDeps.LandingHandler)
    mux.Handle("/install", srvDeps.OAuth.Required(http.HandlerFunc(srvDeps.InstallHandler)))
    mux.HandleFunc(auth.CallbackPath, srvDeps.OAuth.Callback)
    // Timeline actions and location updates arrive here
    mux.HandleFunc("/subscription", srvDeps.SubscriptionHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // Ops
    mux.Handle("/metrics", metrics.Handler())
    mux.HandleFunc("/debug/info", srvDeps.DebugJSON)
    mux.HandleFunc("/openapi.yaml", srvDeps.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", srvDeps.OpenAPIJSONHandler)

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           logMiddleware(mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = srv.Shutdown(shutdownCtx)
    }()

    log.Printf("cartoglass listening on %s", srv.Addr)
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Fatalf("server error: %v", err)
    }
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        status := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, routeLabel(r.URL.Path), status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, routeLabel(r.URL.Path), status).Observe(dur.Seconds())
        log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
    })
}

// routeLabel keeps unknown paths out of the metric label set.
func routeLabel(p string) string {
    switch p {
    case "/", "/install", auth.CallbackPath, "/subscription", "/healthz", "/readyz", "/metrics", "/debug/info", "/openapi.yaml", "/openapi.json":
        return p
    }
    return "other"
}
