package model

import (
	"strconv"
	"strings"
)

// WelcomeCard builds the card sent on install. staticBase is the public origin
// serving the demo video and menu icon.
func WelcomeCard(staticBase string) *TimelineItem {
	base := strings.TrimRight(staticBase, "/")
	return &TimelineItem{
		Notification:  &NotificationConfig{Level: LevelDefault},
		SpeakableType: "Welcome card",
		SpeakableText: "You can't see me, but you can hear me",
		Text:          "Hello Glassingtonian!",
		HTML: `<article><section><p class="text-auto-size">Hello ` +
			`<strong class="yellow">Glassingtonian</strong>!</p></section></article>`,
		MenuItems: []MenuItem{
			{Action: ActionReadAloud},
			{Action: ActionTogglePinned},
			{Action: ActionDelete},
			{Action: ActionOpenURI, Payload: "http://www.techmeme.com"},
			{Action: ActionPlayVideo, Payload: base + "/static/video.mp4"},
			{
				Action: ActionCustom,
				ID:     GuessANumber,
				Values: []MenuValue{{
					DisplayName: "Guess a number",
					IconURL:     base + "/static/glyphicons_009_magic.png",
					State:       LevelDefault,
				}},
			},
		},
	}
}

// GuessReplyCard answers a GUESS_A_NUMBER action with n.
func GuessReplyCard(n int) *TimelineItem {
	return &TimelineItem{
		Notification:  &NotificationConfig{Level: LevelDefault},
		SpeakableType: "This is so random",
		Text:          "This is the number I had in mind: " + strconv.Itoa(n),
		MenuItems:     []MenuItem{{Action: ActionDelete}},
	}
}

// IsGuessAction reports whether a user picked the custom GUESS_A_NUMBER item.
func (a UserAction) IsGuessAction() bool {
	return a.Type == ActionCustom && a.Payload == GuessANumber
}
