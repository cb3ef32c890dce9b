// Package model holds the Mirror API payloads exchanged by the service.
package model

import (
	"time"

	"golang.org/x/oauth2"
)

// Subscription collections.
const (
	CollectionTimeline  = "timeline"
	CollectionLocations = "locations"
)

// Menu item actions understood by the timeline.
const (
	ActionReadAloud    = "READ_ALOUD"
	ActionTogglePinned = "TOGGLE_PINNED"
	ActionDelete       = "DELETE"
	ActionOpenURI      = "OPEN_URI"
	ActionPlayVideo    = "PLAY_VIDEO"
	ActionCustom       = "CUSTOM"
)

const (
	// LevelDefault is the only notification level the timeline accepts.
	LevelDefault = "DEFAULT"
	// GuessANumber is the id of the custom menu item on the welcome card.
	GuessANumber = "GUESS_A_NUMBER"
)

type NotificationConfig struct {
	Level string `json:"level,omitempty"`
}

// MenuValue is the display state of a custom menu item.
type MenuValue struct {
	DisplayName string `json:"displayName,omitempty"`
	IconURL     string `json:"iconUrl,omitempty"`
	State       string `json:"state,omitempty"` // DEFAULT, PENDING, CONFIRMED
}

type MenuItem struct {
	Action  string      `json:"action"`
	ID      string      `json:"id,omitempty"`
	Payload string      `json:"payload,omitempty"`
	Values  []MenuValue `json:"values,omitempty"`
}

// TimelineItem is a card inserted into the user's timeline.
type TimelineItem struct {
	ID            string              `json:"id,omitempty"`
	Notification  *NotificationConfig `json:"notification,omitempty"`
	SpeakableType string              `json:"speakableType,omitempty"`
	SpeakableText string              `json:"speakableText,omitempty"`
	Text          string              `json:"text,omitempty"`
	HTML          string              `json:"html,omitempty"`
	MenuItems     []MenuItem          `json:"menuItems,omitempty"`
	Created       string              `json:"created,omitempty"`
}

// Subscription registers the service's callback for one collection.
type Subscription struct {
	ID          string `json:"id,omitempty"`
	Collection  string `json:"collection"`
	VerifyToken string `json:"verifyToken,omitempty"`
	UserToken   string `json:"userToken,omitempty"`
	CallbackURL string `json:"callbackUrl"`
	Updated     string `json:"updated,omitempty"`
}

// Location as reported by the device. Accuracy is in meters and may be absent.
type Location struct {
	ID          string   `json:"id,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Accuracy    *float64 `json:"accuracy,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Address     string   `json:"address,omitempty"`
}

type UserAction struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
}

// Notification is the body the Mirror API posts to the subscription callback.
type Notification struct {
	Collection  string       `json:"collection"`
	ItemID      string       `json:"itemId"`
	Operation   string       `json:"operation,omitempty"`
	VerifyToken string       `json:"verifyToken"`
	UserToken   string       `json:"userToken"`
	UserActions []UserAction `json:"userActions,omitempty"`
}

// Credential is the stored OAuth token material for one user.
type Credential struct {
	UserID    string
	Token     *oauth2.Token
	UpdatedAt time.Time
}
