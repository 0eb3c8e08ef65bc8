package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDMAPI struct {
	openErr  error
	postErr  error
	opened   []string
	posted   []string
	channels map[string]string
}

func (m *mockDMAPI) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	if m.openErr != nil {
		return nil, false, false, m.openErr
	}
	m.opened = append(m.opened, params.Users...)
	ch := &slack.Channel{}
	ch.ID = "D" + params.Users[0]
	return ch, false, false, nil
}

func (m *mockDMAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.posted = append(m.posted, channelID)
	return channelID, "1", nil
}

func TestSlackNotifier_NotifyUser(t *testing.T) {
	api := &mockDMAPI{}
	n := NewSlackNotifier(api, zerolog.Nop())

	err := n.NotifyUser(context.Background(), "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, api.opened)
	assert.Equal(t, []string{"Du1"}, api.posted)
}

func TestSlackNotifier_OpenFails(t *testing.T) {
	api := &mockDMAPI{openErr: errors.New("channel_not_found")}
	n := NewSlackNotifier(api, zerolog.Nop())

	err := n.NotifyUser(context.Background(), "u1", "hello")
	assert.Error(t, err)
	assert.Empty(t, api.posted)
}

func TestCleanupMessage(t *testing.T) {
	msg := CleanupMessage(2, []string{"alpha", "beta"})
	assert.Contains(t, msg, "2 incomplete tasks")
	assert.Contains(t, msg, "alpha")
	assert.Contains(t, msg, "beta")

	single := CleanupMessage(1, []string{"only one"})
	assert.Contains(t, single, "Your incomplete task was removed")
}
