package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Commands routes bot commands to registered handlers
type Commands struct {
	bot      *Bot
	logger   zerolog.Logger
	handlers map[string]CommandFunc
}

// CommandFunc is a function that handles a command
type CommandFunc func(CommandContext) error

// CommandContext contains command metadata. Target fields identify the
// user the command acts on, resolved from a reply or a text mention.
type CommandContext struct {
	ChatID     int64
	MessageID  int
	UserID     int64
	Username   string
	Command    string
	Args       []string
	RawArgs    string
	TargetID   int64
	TargetName string
}

// HasTarget reports whether the command resolved a target user
func (c CommandContext) HasTarget() bool {
	return c.TargetID != 0
}

// NewCommands creates a new command router
func NewCommands(bot *Bot) *Commands {
	return &Commands{
		bot:      bot,
		logger:   bot.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]CommandFunc),
	}
}

// HandleCommand processes incoming commands
func (c *Commands) HandleCommand(update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	ctx := ParseCommand(update.Message)

	c.logger.Debug().
		Int64("chat_id", ctx.ChatID).
		Str("command", ctx.Command).
		Int64("target_id", ctx.TargetID).
		Msg("Command received")

	handler, exists := c.handlers[ctx.Command]
	if !exists {
		return c.sendUnknownCommand(ctx)
	}
	return handler(ctx)
}

// ParseCommand extracts a CommandContext from a command message
func ParseCommand(msg *tgbotapi.Message) CommandContext {
	ctx := CommandContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Command:   msg.Command(),
		Args:      strings.Fields(msg.CommandArguments()),
		RawArgs:   msg.CommandArguments(),
	}
	if msg.From != nil {
		ctx.UserID = msg.From.ID
		ctx.Username = msg.From.UserName
	}

	// The target is the author of the replied-to message, or a rich text
	// mention inside the command arguments.
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		ctx.TargetID = msg.ReplyToMessage.From.ID
		ctx.TargetName = displayName(msg.ReplyToMessage.From)
		return ctx
	}
	for _, entity := range msg.Entities {
		if entity.Type == "text_mention" && entity.User != nil {
			ctx.TargetID = entity.User.ID
			ctx.TargetName = displayName(entity.User)
			return ctx
		}
	}
	return ctx
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Register registers a command handler
func (c *Commands) Register(command string, handler CommandFunc) {
	c.handlers[command] = handler
	c.logger.Info().Str("command", command).Msg("Command registered")
}

// SetCommands sets the bot's command list in Telegram
func (c *Commands) SetCommands(commands []tgbotapi.BotCommand) error {
	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := c.bot.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	c.logger.Info().Int("count", len(commands)).Msg("Bot commands updated")
	return nil
}

func (c *Commands) sendUnknownCommand(ctx CommandContext) error {
	text := fmt.Sprintf("Unknown command: /%s", ctx.Command)
	_, err := c.bot.SendMessageWithReply(ctx.ChatID, text, ctx.MessageID)
	return err
}

// SendResponse sends a response to a command
func (c *Commands) SendResponse(ctx CommandContext, text string) error {
	_, err := c.bot.SendMessageWithReply(ctx.ChatID, text, ctx.MessageID)
	return err
}
