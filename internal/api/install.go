package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"cartoglass/internal/auth"
	"cartoglass/internal/model"
)

// InstallHandler handles GET /install. It must be wrapped by auth.Flow.Required.
func (s *Server) InstallHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, hc, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "authorization required", r.URL.Path)
		return
	}

	allGood := true
	if err := s.install(r.Context(), userID, hc); err != nil {
		log.Printf("Install failed: %v", err)
		allGood = false
	}
	s.render(w, "install.html", map[string]any{"AllGood": allGood})
}

// install sends the welcome card and subscribes the callback to the
// timeline and locations collections, stopping at the first failure.
func (s *Server) install(ctx context.Context, userID string, hc *http.Client) error {
	mc := s.Mirror(hc)

	card, err := mc.InsertTimelineItem(ctx, model.WelcomeCard(s.Config.StaticBaseURL))
	if err != nil {
		return fmt.Errorf("send welcome card: %w", err)
	}
	log.Printf("welcome card %s inserted for user_id %s", card.ID, userID)

	for _, collection := range []string{model.CollectionTimeline, model.CollectionLocations} {
		sub, err := mc.InsertSubscription(ctx, &model.Subscription{
			Collection:  collection,
			VerifyToken: s.Config.VerifyToken,
			UserToken:   userID,
			CallbackURL: s.Config.CallbackURL,
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", collection, err)
		}
		log.Printf("subscription %s to %s created for user_id %s", sub.ID, collection, userID)
	}
	return nil
}
