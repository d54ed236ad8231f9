package daemon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/banter/internal/observability"
	"github.com/harun/banter/internal/telegram"
	"github.com/harun/banter/pkg/banter"
	"github.com/harun/banter/pkg/events"
)

func (d *Daemon) registerCommands() {
	d.commands.Register("banter", d.handleBanter)
	d.commands.Register("stopbanter", d.handleStopBanter)
	d.commands.Register("welcome", d.handleWelcome)
	d.commands.Register("status", d.handleStatus)
}

// handleBanter starts an engagement session against the target user. The
// session runs until the end of the day in the configured timezone.
func (d *Daemon) handleBanter(ctx telegram.CommandContext) error {
	log := d.zerolog()

	if !ctx.HasTarget() {
		return d.respond(ctx, "Reply to someone's message with /banter to start roasting them.")
	}
	if ctx.TargetID == d.chat.SelfID() {
		return d.respond(ctx, "Roast myself? I have standards.")
	}

	session, err := d.registry.Create(ctx.TargetID, ctx.TargetName, ctx.ChatID, d.deadline(time.Now()))
	if err != nil {
		switch {
		case errors.Is(err, banter.ErrAlreadyActive):
			return d.respond(ctx, fmt.Sprintf("Already bantering with %s today! One roast at a time.", ctx.TargetName))
		case errors.Is(err, banter.ErrShuttingDown):
			return d.respond(ctx, "I'm packing up for the day. Try me tomorrow.")
		case errors.Is(err, banter.ErrPastDeadline):
			return d.respond(ctx, fmt.Sprintf("The day's basically over. %s gets a pass, just this once.", ctx.TargetName))
		default:
			return err
		}
	}

	log.Info().
		Str("session_id", session.ID).
		Int64("subject_id", session.SubjectID).
		Str("subject", session.SubjectName).
		Time("deadline", session.Deadline).
		Msg("Banter session started")

	text, err := d.generator.Banter(d.ctx, session.SubjectName)
	if err != nil {
		observability.RecordGenerationFailure()
		text = banter.FallbackText(session.SubjectName)
	}

	messageID, err := d.chat.SendBanter(session.ChatID, session.SubjectID, session.SubjectName, text)
	if err != nil {
		observability.RecordDeliveryFailure()
		d.registry.Cancel(session.SubjectID)
		return fmt.Errorf("failed to open banter session: %w", err)
	}

	d.correlator.Record(session, session.ChatID, messageID)
	observability.RecordMessageSent(banter.DeliveryInitial)
	d.hub.Broadcast(events.EventSessionStarted, map[string]interface{}{
		"sessionId": session.ID,
		"subject":   session.SubjectName,
		"chatId":    session.ChatID,
		"deadline":  session.Deadline.UnixMilli(),
	})

	d.scheduler.Start(d.ctx, session)
	return nil
}

// handleStopBanter cancels the target's active session. Restricted to
// configured admins and chat administrators.
func (d *Daemon) handleStopBanter(ctx telegram.CommandContext) error {
	allowed, err := d.isAdmin(ctx)
	if err != nil {
		return err
	}
	if !allowed {
		return d.respond(ctx, "Nice try. Only admins can call off a roast.")
	}

	if !ctx.HasTarget() {
		return d.respond(ctx, "Reply to the victim's message with /stopbanter to call it off.")
	}

	if !d.registry.Cancel(ctx.TargetID) {
		return d.respond(ctx, fmt.Sprintf("No active banter session for %s.", ctx.TargetName))
	}

	d.zerolog().Info().
		Int64("subject_id", ctx.TargetID).
		Int64("by", ctx.UserID).
		Msg("Banter session cancelled by admin")
	return d.respond(ctx, fmt.Sprintf("Alright, %s is off the hook.", ctx.TargetName))
}

// handleWelcome greets the target user with the persona's greeting, the
// same line new members get on joining.
func (d *Daemon) handleWelcome(ctx telegram.CommandContext) error {
	if !ctx.HasTarget() {
		return d.respond(ctx, "Reply to someone's message with /welcome to greet them.")
	}
	if ctx.TargetID == d.chat.SelfID() {
		return d.respond(ctx, "I know who I am, thanks.")
	}

	greeting := d.generator.Persona().Greeting
	if _, err := d.chat.SendBanter(ctx.ChatID, ctx.TargetID, ctx.TargetName, greeting); err != nil {
		observability.RecordDeliveryFailure()
		return fmt.Errorf("failed to deliver welcome: %w", err)
	}
	return nil
}

// handleStatus reports uptime and the sessions currently running
func (d *Daemon) handleStatus(ctx telegram.CommandContext) error {
	status := d.Status()

	var b strings.Builder
	fmt.Fprintf(&b, "Uptime: %s\n", status.Uptime.Round(time.Second))

	active := d.registry.Active()
	if len(active) == 0 {
		b.WriteString("No one is being roasted right now.")
	} else {
		fmt.Fprintf(&b, "Roasting %d victim(s):\n", len(active))
		for _, s := range active {
			fmt.Fprintf(&b, "- %s (until %s)\n", s.SubjectName, s.Deadline.In(d.location).Format("15:04"))
		}
	}
	return d.respond(ctx, b.String())
}

func (d *Daemon) respond(ctx telegram.CommandContext, text string) error {
	_, err := d.chat.SendMessageWithReply(ctx.ChatID, text, ctx.MessageID)
	return err
}

func (d *Daemon) isAdmin(ctx telegram.CommandContext) (bool, error) {
	for _, id := range d.config.Telegram.Admins {
		if id == ctx.UserID {
			return true, nil
		}
	}
	admin, err := d.chat.IsChatAdmin(ctx.ChatID, ctx.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to check admin rights: %w", err)
	}
	return admin, nil
}
