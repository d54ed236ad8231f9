package daemon

import (
	"time"

	"github.com/harun/banter/internal/observability"
	"github.com/harun/banter/pkg/banter"
	"github.com/harun/banter/pkg/events"
)

// sessionObserver bridges scheduler lifecycle callbacks into metrics and
// the websocket event stream.
type sessionObserver struct {
	hub      *events.Hub
	registry *banter.Registry
}

func (o *sessionObserver) SessionScheduled(session *banter.Session, messageCount int) {
	observability.RecordSessionStart()
	observability.SetActiveSessions(o.registry.Len())
	o.hub.Broadcast(events.EventSessionScheduled, map[string]interface{}{
		"sessionId": session.ID,
		"subject":   session.SubjectName,
		"chatId":    session.ChatID,
		"messages":  messageCount,
		"deadline":  session.Deadline.UnixMilli(),
	})
}

func (o *sessionObserver) MessageDelivered(session *banter.Session, messageID int, kind string) {
	observability.RecordMessageSent(kind)
	o.hub.Broadcast(events.EventMessageDelivered, map[string]interface{}{
		"sessionId": session.ID,
		"subject":   session.SubjectName,
		"messageId": messageID,
		"kind":      kind,
	})
}

func (o *sessionObserver) GenerationFailed(*banter.Session) {
	observability.RecordGenerationFailure()
}

func (o *sessionObserver) DeliveryFailed(*banter.Session) {
	observability.RecordDeliveryFailure()
}

func (o *sessionObserver) SessionFinished(session *banter.Session, state banter.State) {
	observability.RecordSessionFinish(string(state), time.Since(session.StartTime))
	observability.SetActiveSessions(o.registry.Len())
	o.hub.Broadcast(events.EventSessionFinished, map[string]interface{}{
		"sessionId": session.ID,
		"subject":   session.SubjectName,
		"state":     string(state),
	})
}
