package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Handler implements message handling for Telegram
type Handler struct {
	bot    *Bot
	logger zerolog.Logger

	onMessage func(MessageContext) error
}

// MessageContext contains message metadata
type MessageContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	FirstName string
	Text      string
	Timestamp time.Time
	IsGroup   bool
	IsBot     bool

	// Reply metadata, zero-valued when the message is not a reply.
	ReplyToID     int
	ReplyToUserID int64
	ReplyToIsSelf bool

	NewMembers []tgbotapi.User
}

// IsReply reports whether the message replies to another message
func (m MessageContext) IsReply() bool {
	return m.ReplyToID != 0
}

// NewHandler creates a new message handler
func NewHandler(bot *Bot) *Handler {
	return &Handler{
		bot:    bot,
		logger: bot.logger.With().Str("module", "handler").Logger(),
	}
}

// HandleMessage processes incoming messages
func (h *Handler) HandleMessage(update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	ctx := buildMessageContext(update.Message, h.bot.SelfID())

	h.logger.Debug().
		Int64("chat_id", ctx.ChatID).
		Int64("user_id", ctx.UserID).
		Bool("is_reply", ctx.IsReply()).
		Int("new_members", len(ctx.NewMembers)).
		Msg("Message received")

	if h.onMessage != nil {
		return h.onMessage(ctx)
	}
	return nil
}

func buildMessageContext(msg *tgbotapi.Message, selfID int64) MessageContext {
	ctx := MessageContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
		IsGroup:   msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
	}
	if msg.From != nil {
		ctx.UserID = msg.From.ID
		ctx.Username = msg.From.UserName
		ctx.FirstName = msg.From.FirstName
		ctx.IsBot = msg.From.IsBot
	}

	if msg.ReplyToMessage != nil {
		ctx.ReplyToID = msg.ReplyToMessage.MessageID
		if msg.ReplyToMessage.From != nil {
			ctx.ReplyToUserID = msg.ReplyToMessage.From.ID
			ctx.ReplyToIsSelf = msg.ReplyToMessage.From.IsBot && msg.ReplyToMessage.From.ID == selfID
		}
	}

	if msg.NewChatMembers != nil {
		ctx.NewMembers = msg.NewChatMembers
	}
	return ctx
}

// SetOnMessage sets the message callback
func (h *Handler) SetOnMessage(callback func(MessageContext) error) {
	h.onMessage = callback
}

// SendResponse sends a reply to the handled message, returning the sent
// message ID.
func (h *Handler) SendResponse(ctx MessageContext, text string) (int, error) {
	return h.bot.SendMessageWithReply(ctx.ChatID, text, ctx.MessageID)
}
