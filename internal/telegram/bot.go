package telegram

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/harun/banter/internal/config"
	"github.com/harun/banter/internal/logger"
	"github.com/harun/banter/pkg/banter"
)

// Bot represents a Telegram bot instance
type Bot struct {
	api    *tgbotapi.BotAPI
	config *config.TelegramConfig
	logger zerolog.Logger

	messageHandler MessageHandler
	commandHandler CommandHandler

	running bool
	updates tgbotapi.UpdatesChannel
}

// MessageHandler handles incoming non-command messages
type MessageHandler interface {
	HandleMessage(update tgbotapi.Update) error
}

// CommandHandler handles bot commands
type CommandHandler interface {
	HandleCommand(update tgbotapi.Update) error
}

// New creates a new Telegram bot instance
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := &Bot{
		api:    api,
		config: cfg,
		logger: log.GetZerolog().With().Str("component", "telegram").Logger(),
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// Start starts the bot and begins processing updates
func (b *Bot) Start() error {
	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	b.updates = b.api.GetUpdatesChan(u)
	b.running = true

	go b.processUpdates()

	b.logger.Info().Msg("Telegram bot started")
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	if !b.running {
		return fmt.Errorf("bot is not running")
	}

	b.logger.Info().Msg("Stopping Telegram bot")
	b.running = false
	b.api.StopReceivingUpdates()
	return nil
}

func (b *Bot) processUpdates() {
	for update := range b.updates {
		if !b.running {
			break
		}
		if err := b.handleUpdate(update); err != nil {
			b.logger.Error().
				Err(err).
				Int("update_id", update.UpdateID).
				Msg("Failed to handle update")
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	if update.Message.IsCommand() && b.commandHandler != nil {
		return b.commandHandler.HandleCommand(update)
	}

	if b.messageHandler != nil {
		return b.messageHandler.HandleMessage(update)
	}
	return nil
}

// SendMessage sends a plain text message
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return mapSendError(err)
	}

	b.logger.Debug().Int64("chat_id", chatID).Msg("Message sent")
	return nil
}

// SendMessageWithReply sends a text message as a reply
func (b *Bot) SendMessageWithReply(chatID int64, text string, replyToMessageID int) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToMessageID

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, mapSendError(err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int("reply_to", replyToMessageID).
		Msg("Reply sent")
	return sent.MessageID, nil
}

// SendBanter sends a banter message that mentions the subject, returning the
// sent message ID so replies can be correlated back to the session.
func (b *Bot) SendBanter(chatID, subjectID int64, subjectName, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s %s", Mention(subjectID, subjectName), text))
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, mapSendError(err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int64("subject_id", subjectID).
		Int("message_id", sent.MessageID).
		Msg("Banter sent")
	return sent.MessageID, nil
}

// Mention formats an inline Markdown mention for a user
func Mention(userID int64, name string) string {
	return fmt.Sprintf("[%s](tg://user?id=%d)", escapeMarkdown(name), userID)
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("[", "\\[", "]", "\\]", "_", "\\_", "*", "\\*", "`", "\\`")
	return replacer.Replace(s)
}

// Telegram API error descriptions that mean the destination will never
// accept another message.
var goneMarkers = []string{
	"chat not found",
	"bot was blocked by the user",
	"bot was kicked",
	"user is deactivated",
	"group chat was deactivated",
	"have no rights to send a message",
}

func mapSendError(err error) error {
	if err == nil {
		return nil
	}
	desc := strings.ToLower(err.Error())
	for _, marker := range goneMarkers {
		if strings.Contains(desc, marker) {
			return fmt.Errorf("%w: %s", banter.ErrDestinationGone, err.Error())
		}
	}
	return fmt.Errorf("failed to send message: %w", err)
}

// IsDestinationGone reports whether a send error is permanent
func IsDestinationGone(err error) bool {
	return errors.Is(err, banter.ErrDestinationGone)
}

// IsChatAdmin reports whether the user administers the chat
func (b *Bot) IsChatAdmin(chatID, userID int64) (bool, error) {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}
	return member.Status == "creator" || member.Status == "administrator", nil
}

// SelfID returns the bot's own user ID
func (b *Bot) SelfID() int64 {
	return b.api.Self.ID
}

// SetMessageHandler sets the message handler
func (b *Bot) SetMessageHandler(handler MessageHandler) {
	b.messageHandler = handler
}

// SetCommandHandler sets the command handler
func (b *Bot) SetCommandHandler(handler CommandHandler) {
	b.commandHandler = handler
}

// IsRunning returns whether the bot is running
func (b *Bot) IsRunning() bool {
	return b.running
}
