// Package notify delivers direct messages to users. Delivery is best
// effort: the reset engine and command surface never fail because a DM
// could not be sent.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// Notifier sends a direct message to a user.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, message string) error
}

// DMAPI abstracts the Slack API for testing.
type DMAPI interface {
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier delivers DMs through the Slack Web API.
type SlackNotifier struct {
	api    DMAPI
	logger zerolog.Logger
}

// NewSlackNotifier creates a SlackNotifier.
func NewSlackNotifier(api DMAPI, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:    api,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// NotifyUser opens (or reuses) the DM conversation with the user and
// posts the message.
func (n *SlackNotifier) NotifyUser(ctx context.Context, userID, message string) error {
	ch, _, _, err := n.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}

	_, _, err = n.api.PostMessageContext(ctx, ch.ID, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("post dm: %w", err)
	}

	n.logger.Debug().Str("user", userID).Msg("dm delivered")
	return nil
}

// CleanupMessage renders the midnight cleanup DM listing the tasks
// that were removed.
func CleanupMessage(count int, titles []string) string {
	var b strings.Builder
	if count == 1 {
		b.WriteString("Your incomplete task was removed at the daily reset:\n")
	} else {
		fmt.Fprintf(&b, "Your %d incomplete tasks were removed at the daily reset:\n", count)
	}
	for _, title := range titles {
		fmt.Fprintf(&b, "  • %s\n", title)
	}
	b.WriteString("Your daily task slots are refreshed. Good luck today!")
	return b.String()
}

// NopNotifier drops every message. Used when the bot runs without
// Slack credentials.
type NopNotifier struct{}

func (NopNotifier) NotifyUser(context.Context, string, string) error { return nil }
