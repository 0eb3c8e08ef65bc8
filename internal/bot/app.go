// Package bot is the Slack surface: a Socket Mode connection routing
// slash commands into the task, quota and session services.
package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// App is the Slack bot application using Socket Mode.
type App struct {
	api     *slack.Client
	socket  *socketmode.Client
	handler *Handler
	logger  zerolog.Logger
}

// NewApp creates the Slack app. The returned app exposes its API
// client so the DM notifier can share the connection.
func NewApp(botToken, appToken string, handler *Handler, logger zerolog.Logger) *App {
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	return &App{
		api:     api,
		socket:  socketmode.New(api),
		handler: handler,
		logger:  logger.With().Str("component", "bot").Logger(),
	}
}

// Client returns the underlying Slack API client.
func (a *App) Client() *slack.Client {
	return a.api
}

// Run starts the Socket Mode event loop. Blocks until the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("starting Slack Socket Mode connection")

	go func() {
		for evt := range a.socket.Events {
			a.handleEvent(ctx, evt)
		}
	}()

	if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode error: %w", err)
	}
	return nil
}

func (a *App) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			a.logger.Warn().Msg("failed to cast slash command data")
			return
		}

		reply := a.handler.HandleCommand(ctx, cmd)

		// Slash commands must be acknowledged within 3 seconds; the
		// reply rides along as an ephemeral message.
		if evt.Request != nil {
			a.socket.Ack(*evt.Request, map[string]interface{}{
				"response_type": "ephemeral",
				"text":          reply,
			})
		}

	case socketmode.EventTypeConnected:
		a.logger.Info().Msg("connected to Slack")
	case socketmode.EventTypeConnectionError:
		a.logger.Warn().Msg("Slack connection error, retrying")
	default:
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event type")
	}
}
