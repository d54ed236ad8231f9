package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

const selfID int64 = 555

func TestBuildMessageContext(t *testing.T) {
	t.Run("plain group message", func(t *testing.T) {
		msg := &tgbotapi.Message{
			MessageID: 20,
			Chat:      &tgbotapi.Chat{ID: -100123, Type: "supergroup"},
			From:      &tgbotapi.User{ID: 2, UserName: "dave", FirstName: "Dave"},
			Text:      "morning all",
			Date:      1750000000,
		}

		ctx := buildMessageContext(msg, selfID)
		assert.Equal(t, int64(-100123), ctx.ChatID)
		assert.Equal(t, int64(2), ctx.UserID)
		assert.Equal(t, "dave", ctx.Username)
		assert.Equal(t, "morning all", ctx.Text)
		assert.True(t, ctx.IsGroup)
		assert.False(t, ctx.IsReply())
		assert.False(t, ctx.IsBot)
	})

	t.Run("reply to the bot", func(t *testing.T) {
		msg := &tgbotapi.Message{
			MessageID: 21,
			Chat:      &tgbotapi.Chat{ID: -100123, Type: "supergroup"},
			From:      &tgbotapi.User{ID: 2, UserName: "dave"},
			Text:      "oi, watch it",
			ReplyToMessage: &tgbotapi.Message{
				MessageID: 19,
				From:      &tgbotapi.User{ID: selfID, IsBot: true},
			},
		}

		ctx := buildMessageContext(msg, selfID)
		assert.True(t, ctx.IsReply())
		assert.Equal(t, 19, ctx.ReplyToID)
		assert.Equal(t, selfID, ctx.ReplyToUserID)
		assert.True(t, ctx.ReplyToIsSelf)
	})

	t.Run("reply to another bot is not self", func(t *testing.T) {
		msg := &tgbotapi.Message{
			MessageID: 22,
			Chat:      &tgbotapi.Chat{ID: -100123, Type: "group"},
			From:      &tgbotapi.User{ID: 2},
			ReplyToMessage: &tgbotapi.Message{
				MessageID: 18,
				From:      &tgbotapi.User{ID: 777, IsBot: true},
			},
		}

		ctx := buildMessageContext(msg, selfID)
		assert.True(t, ctx.IsReply())
		assert.False(t, ctx.ReplyToIsSelf)
	})

	t.Run("new member announcement", func(t *testing.T) {
		msg := &tgbotapi.Message{
			MessageID: 23,
			Chat:      &tgbotapi.Chat{ID: -100123, Type: "supergroup"},
			From:      &tgbotapi.User{ID: 3},
			NewChatMembers: []tgbotapi.User{
				{ID: 42, UserName: "newbie"},
			},
		}

		ctx := buildMessageContext(msg, selfID)
		assert.Len(t, ctx.NewMembers, 1)
		assert.Equal(t, int64(42), ctx.NewMembers[0].ID)
	})
}
