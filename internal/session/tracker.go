package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scorer opens and closes persisted sessions on behalf of the tracker.
type Scorer interface {
	OpenSession(ctx context.Context, userID, channelID string, start time.Time) (sessionID string, err error)
	CloseSession(ctx context.Context, sessionID string, end time.Time) error
}

// Tracker translates join/leave presence events into registry state.
// A leave moves the user into the grace window; reconnecting to the
// same channel inside the window resumes the same logical session,
// otherwise the session is closed when the window expires.
type Tracker struct {
	registry    *Registry
	scorer      Scorer
	graceWindow time.Duration
	logger      zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTracker creates a Tracker.
func NewTracker(registry *Registry, scorer Scorer, graceWindow time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{
		registry:    registry,
		scorer:      scorer,
		graceWindow: graceWindow,
		logger:      logger.With().Str("component", "tracker").Logger(),
		timers:      make(map[string]*time.Timer),
	}
}

// HandleJoin records a user entering a focus channel.
func (t *Tracker) HandleJoin(ctx context.Context, userID, channelID string) error {
	now := time.Now()

	// Reconnect inside the grace window resumes the same session.
	if g, ok := t.registry.GetGrace(userID); ok {
		t.cancelGraceTimer(userID)
		t.registry.DeleteGrace(userID)

		if g.ChannelID == channelID {
			t.registry.SetActive(userID, ActiveEntry{
				ChannelID: channelID,
				JoinTime:  now,
				SessionID: g.SessionID,
				LastSeen:  now,
			})
			t.logger.Debug().Str("user", userID).Str("channel", channelID).Msg("session resumed from grace window")
			return nil
		}

		// Different channel: the old session ends, a new one starts.
		if err := t.scorer.CloseSession(ctx, g.SessionID, now); err != nil {
			t.logger.Warn().Err(err).Str("user", userID).Msg("failed to close session on channel switch")
		}
	}

	sessionID, err := t.scorer.OpenSession(ctx, userID, channelID, now)
	if err != nil {
		return err
	}

	t.registry.SetActive(userID, ActiveEntry{
		ChannelID: channelID,
		JoinTime:  now,
		SessionID: sessionID,
		LastSeen:  now,
	})
	t.logger.Info().Str("user", userID).Str("channel", channelID).Msg("focus session started")
	return nil
}

// HandleLeave records a user disconnecting. The session stays open for
// the grace window before being closed for good.
func (t *Tracker) HandleLeave(ctx context.Context, userID string) {
	a, ok := t.registry.GetActive(userID)
	if !ok {
		return
	}

	t.registry.DeleteActive(userID)
	t.registry.SetGrace(userID, GraceEntry{
		ChannelID:      a.ChannelID,
		SessionID:      a.SessionID,
		DisconnectedAt: time.Now(),
	})

	t.mu.Lock()
	t.timers[userID] = time.AfterFunc(t.graceWindow, func() {
		t.confirmDisconnect(userID)
	})
	t.mu.Unlock()

	t.logger.Debug().Str("user", userID).Dur("grace", t.graceWindow).Msg("user entered grace window")
}

// confirmDisconnect fires when the grace window expires without a reconnect.
func (t *Tracker) confirmDisconnect(userID string) {
	g, ok := t.registry.GetGrace(userID)
	if !ok {
		return
	}
	t.registry.DeleteGrace(userID)
	t.cancelGraceTimer(userID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.scorer.CloseSession(ctx, g.SessionID, time.Now()); err != nil {
		t.logger.Error().Err(err).Str("user", userID).Msg("failed to close session after grace expiry")
		return
	}
	t.logger.Info().Str("user", userID).Msg("focus session closed after grace expiry")
}

// CancelGrace stops the user's pending grace timer, if any. The reset
// engine calls this after finalizing a grace session itself.
func (t *Tracker) CancelGrace(userID string) {
	t.cancelGraceTimer(userID)
}

// Stop cancels all pending grace timers. Open sessions stay persisted
// as open rows so a restart can pick them up.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *Tracker) cancelGraceTimer(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
}
