package daemon

import (
	"github.com/harun/banter/internal/observability"
	"github.com/harun/banter/internal/telegram"
	"github.com/harun/banter/pkg/banter"
	"github.com/harun/banter/pkg/events"
)

// handleIncoming processes non-command messages: welcome greetings for
// new members and replies to the bot's banter messages.
func (d *Daemon) handleIncoming(ctx telegram.MessageContext) error {
	if len(ctx.NewMembers) > 0 {
		return d.greetNewMembers(ctx)
	}

	// Messages authored by bots never re-enter the banter loop.
	if ctx.IsBot {
		return nil
	}
	if !ctx.IsReply() || !ctx.ReplyToIsSelf {
		return nil
	}
	return d.handleReply(ctx)
}

func (d *Daemon) greetNewMembers(ctx telegram.MessageContext) error {
	greeting := d.generator.Persona().Greeting
	for _, member := range ctx.NewMembers {
		if member.IsBot {
			continue
		}
		name := member.UserName
		if name == "" {
			name = member.FirstName
		}
		if _, err := d.chat.SendBanter(ctx.ChatID, member.ID, name, greeting); err != nil {
			d.zerolog().Warn().Err(err).Int64("member_id", member.ID).Msg("Failed to greet new member")
		}
	}
	return nil
}

// handleReply correlates a reply to one of the bot's messages back to its
// session and answers in kind. Replies to messages from other sessions or
// eras are ignored.
func (d *Daemon) handleReply(ctx telegram.MessageContext) error {
	session, ok := d.correlator.Resolve(ctx.ChatID, ctx.ReplyToID)
	if !ok {
		return nil
	}

	name := ctx.Username
	if name == "" {
		name = ctx.FirstName
	}

	log := d.zerolog().With().
		Str("session_id", session.ID).
		Int64("replier_id", ctx.UserID).
		Logger()
	log.Debug().Msg("Reply correlated to session")

	text, err := d.generator.Reply(d.ctx, name, ctx.Text)
	if err != nil {
		observability.RecordGenerationFailure()
		text = banter.FallbackText(name)
	}

	messageID, err := d.chat.SendMessageWithReply(ctx.ChatID, text, ctx.MessageID)
	if err != nil {
		observability.RecordDeliveryFailure()
		log.Warn().Err(err).Msg("Failed to deliver reply")
		return err
	}

	// The response joins the session's message set so the thread can keep
	// going.
	d.correlator.Record(session, ctx.ChatID, messageID)
	observability.RecordReplyCorrelated()
	observability.RecordMessageSent(banter.DeliveryReply)
	d.hub.Broadcast(events.EventReplyCorrelated, map[string]interface{}{
		"sessionId": session.ID,
		"subject":   session.SubjectName,
		"replier":   name,
	})
	return nil
}
