package banter

import (
	"sync"

	"github.com/rs/zerolog"
)

// messageKey identifies a delivered message. Telegram message ids are only
// unique within a chat, so the chat id is part of the key.
type messageKey struct {
	chatID    int64
	messageID int
}

// Correlator maps delivered message ids to their originating session so an
// inbound reply can be matched in O(1), independent of any client-side
// message cache. Only messages this process delivered are ever recorded,
// which is what guarantees matches are bot-authored.
type Correlator struct {
	mu        sync.RWMutex
	byMessage map[messageKey]*Session
	logger    zerolog.Logger
}

// NewCorrelator creates an empty reply correlator
func NewCorrelator(logger zerolog.Logger) *Correlator {
	return &Correlator{
		byMessage: make(map[messageKey]*Session),
		logger:    logger.With().Str("component", "correlator").Logger(),
	}
}

// Record associates a delivered message with its session. Called after
// every successful delivery, the initial message included. Reply threads
// can outlive the scheduled timeline, so entries may still be recorded
// for a session that has already reached a terminal state; they linger
// until the next PruneFinished sweep.
func (c *Correlator) Record(session *Session, chatID int64, messageID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byMessage[messageKey{chatID: chatID, messageID: messageID}] = session

	c.logger.Debug().
		Str("session_id", session.ID).
		Int64("chat_id", chatID).
		Int("message_id", messageID).
		Msg("Delivery recorded")
}

// Resolve returns the session that delivered the referenced message.
// An unknown id means the reply is unrelated conversation; that is not an
// error, the caller simply ignores the reply.
func (c *Correlator) Resolve(chatID int64, messageID int) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, ok := c.byMessage[messageKey{chatID: chatID, messageID: messageID}]
	return session, ok
}

// Forget drops every entry recorded for the given session id and returns
// how many were removed.
func (c *Correlator) Forget(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, session := range c.byMessage {
		if session.ID == sessionID {
			delete(c.byMessage, key)
			removed++
		}
	}
	return removed
}

// PruneFinished drops entries whose session is no longer active. Finished
// sessions stay resolvable until the next prune so replies already in
// flight still correlate.
func (c *Correlator) PruneFinished() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, session := range c.byMessage {
		if session.State() != StateActive {
			delete(c.byMessage, key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Msg("Pruned finished session entries")
	}
	return removed
}

// Len returns the number of recorded deliveries
func (c *Correlator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byMessage)
}
