package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"cartoglass/internal/cartodb"
	"cartoglass/internal/metrics"
	"cartoglass/internal/mirror"
	"cartoglass/internal/model"
	"cartoglass/internal/store"
)

// SubscriptionHandler receives Mirror API notifications at POST /subscription.
// If it fails to respond the Mirror API retries up to 5 times, so processing
// errors are logged and still answered with 200.
func (s *Server) SubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var n model.Notification
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&n); err != nil {
		log.Printf("invalid notification body: %v", err)
		metrics.Notifications.WithLabelValues("unknown", "bad_request").Inc()
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}

	// Authenticating will make no difference, hence 403
	if subtle.ConstantTimeCompare([]byte(n.VerifyToken), []byte(s.Config.VerifyToken)) != 1 {
		log.Printf("Unauthorized request to the subscription endpoint.")
		metrics.Notifications.WithLabelValues(collectionLabel(n.Collection), "forbidden").Inc()
		writeProblem(w, http.StatusForbidden, "Forbidden", "bad verify token", r.URL.Path)
		return
	}

	userID := n.UserToken
	tok, err := s.Credentials.GetCredential(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("load credential for user_id %s: %v", userID, err)
		}
		log.Printf("Authentication is required and has failed.")
		metrics.Notifications.WithLabelValues(collectionLabel(n.Collection), "unauthorized").Inc()
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "no credential for user", r.URL.Path)
		return
	}

	mc := s.Mirror(s.OAuth.Client(r.Context(), userID, tok))
	var perr error
	switch n.Collection {
	case model.CollectionLocations:
		perr = s.handleLocation(r.Context(), mc, userID, &n)
	case model.CollectionTimeline:
		perr = s.handleTimeline(r.Context(), mc, &n)
	}
	outcome := "ok"
	if perr != nil {
		log.Printf("Failed SubscriptionHandler for user_id %s: %v", userID, perr)
		outcome = "error"
	}
	metrics.Notifications.WithLabelValues(collectionLabel(n.Collection), outcome).Inc()
	w.WriteHeader(http.StatusOK)
}

// handleLocation fetches the notified location and stores it in CartoDB.
func (s *Server) handleLocation(ctx context.Context, mc mirror.Client, userID string, n *model.Notification) error {
	if !s.Throttle.Allow(userID) {
		log.Printf("location lookup for user_id %s throttled", userID)
		return nil
	}
	loc, err := mc.GetLocation(ctx, n.ItemID)
	if err != nil {
		return fmt.Errorf("get location %s: %w", n.ItemID, err)
	}
	q := cartodb.InsertQuery(s.Config.CartoDBTable, loc, userID)
	res, err := s.Carto.Insert(ctx, q)
	if err != nil {
		return err
	}
	log.Printf("CartoDB: %d (response: %s, query: %s)", res.Status, res.Body, q)
	return nil
}

// handleTimeline answers every GUESS_A_NUMBER selection with a reply card.
func (s *Server) handleTimeline(ctx context.Context, mc mirror.Client, n *model.Notification) error {
	for _, a := range n.UserActions {
		if !a.IsGuessAction() {
			continue
		}
		card, err := mc.InsertTimelineItem(ctx, model.GuessReplyCard(s.Guess()))
		if err != nil {
			return fmt.Errorf("insert reply card: %w", err)
		}
		log.Printf("reply card %s inserted for user_id %s", card.ID, n.UserToken)
	}
	return nil
}

// collectionLabel bounds the metric label to known collections.
func collectionLabel(c string) string {
	switch c {
	case model.CollectionTimeline, model.CollectionLocations:
		return c
	}
	return "other"
}
