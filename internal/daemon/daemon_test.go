package daemon

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/banter/internal/config"
	"github.com/harun/banter/internal/logger"
	"github.com/harun/banter/internal/persona"
	"github.com/harun/banter/internal/telegram"
	"github.com/harun/banter/pkg/banter"
	"github.com/harun/banter/pkg/events"
)

const testSelfID int64 = 555

type sentMessage struct {
	chatID    int64
	subjectID int64
	text      string
	replyTo   int
}

type fakeChat struct {
	mu         sync.Mutex
	chatAdmins map[int64]bool
	sent       []sentMessage
	nextID     int
	sendErr    error
}

func (f *fakeChat) record(msg sentMessage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, msg)
	return f.nextID
}

func (f *fakeChat) SendBanter(chatID, subjectID int64, subjectName, text string) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	return f.record(sentMessage{chatID: chatID, subjectID: subjectID, text: text}), nil
}

func (f *fakeChat) SendMessage(chatID int64, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.record(sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeChat) SendMessageWithReply(chatID int64, text string, replyTo int) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	return f.record(sentMessage{chatID: chatID, text: text, replyTo: replyTo}), nil
}

func (f *fakeChat) IsChatAdmin(_, userID int64) (bool, error) {
	return f.chatAdmins[userID], nil
}

func (f *fakeChat) SelfID() int64 { return testSelfID }

func (f *fakeChat) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeChat) last() sentMessage {
	msgs := f.messages()
	return msgs[len(msgs)-1]
}

type fakeGen struct {
	mu        sync.Mutex
	banterErr error
	replyErr  error
	persona   persona.Persona
}

func (g *fakeGen) Banter(_ context.Context, name string) (string, error) {
	if g.banterErr != nil {
		return "", g.banterErr
	}
	return fmt.Sprintf("Oi %s, your takes are lukewarm.", name), nil
}

func (g *fakeGen) Reply(_ context.Context, name, _ string) (string, error) {
	if g.replyErr != nil {
		return "", g.replyErr
	}
	return fmt.Sprintf("Bold words, %s.", name), nil
}

func (g *fakeGen) SetPersona(p persona.Persona) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persona = p
}

func (g *fakeGen) Persona() persona.Persona {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.persona
}

func newTestDaemon(t *testing.T) (*Daemon, *fakeChat, *fakeGen) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Telegram.Admins = []int64{1}

	log, err := logger.New(logger.Config{Level: "error", Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	zl := zerolog.Nop()
	chat := &fakeChat{chatAdmins: map[int64]bool{}}
	gen := &fakeGen{persona: persona.Default()}

	registry := banter.NewRegistry(zl)
	correlator := banter.NewCorrelator(zl)
	hub := events.NewHub(zl)

	scheduler, err := banter.NewScheduler(banter.SchedulerConfig{
		Registry:   registry,
		Correlator: correlator,
		Messenger:  chat,
		Generator:  gen,
		Observer:   &sessionObserver{hub: hub, registry: registry},
		Logger:     zl,
		// Scheduled deliveries stay parked so tests observe only the
		// traffic the handlers produce.
		After: func(time.Duration) <-chan time.Time { return make(chan time.Time) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config:     cfg,
		logger:     log,
		registry:   registry,
		scheduler:  scheduler,
		correlator: correlator,
		generator:  gen,
		chat:       chat,
		hub:        hub,
		location:   time.UTC,
		ctx:        ctx,
		cancel:     cancel,
	}
	t.Cleanup(func() {
		registry.CancelAll()
		scheduler.Wait(time.Second)
		cancel()
		hub.Close()
	})
	return d, chat, gen
}

func banterCommand(target int64, targetName string) telegram.CommandContext {
	return telegram.CommandContext{
		ChatID:     -100123,
		MessageID:  10,
		UserID:     1,
		Username:   "alice",
		Command:    "banter",
		TargetID:   target,
		TargetName: targetName,
	}
}

func TestHandleBanter(t *testing.T) {
	t.Run("starts a session and sends the opening message", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)

		require.NoError(t, d.handleBanter(banterCommand(42, "dave")))

		session, ok := d.registry.Get(42)
		require.True(t, ok)
		assert.Equal(t, "dave", session.SubjectName)
		assert.Equal(t, banter.StateActive, session.State())

		msgs := chat.messages()
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0].text, "dave")
		assert.Equal(t, int64(42), msgs[0].subjectID)

		// The opening message is correlatable.
		resolved, ok := d.correlator.Resolve(-100123, 1)
		require.True(t, ok)
		assert.Equal(t, session.ID, resolved.ID)
	})

	t.Run("requires a target", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)

		cmd := banterCommand(0, "")
		require.NoError(t, d.handleBanter(cmd))
		assert.Contains(t, chat.last().text, "Reply to someone's message")
		assert.Zero(t, d.registry.Len())
	})

	t.Run("refuses to roast itself", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)

		require.NoError(t, d.handleBanter(banterCommand(testSelfID, "banterbot")))
		assert.Contains(t, chat.last().text, "standards")
		assert.Zero(t, d.registry.Len())
	})

	t.Run("one session per subject per day", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)

		require.NoError(t, d.handleBanter(banterCommand(42, "dave")))
		require.NoError(t, d.handleBanter(banterCommand(42, "dave")))

		assert.Equal(t, 1, d.registry.Len())
		assert.Contains(t, chat.last().text, "Already bantering with dave")
	})

	t.Run("falls back when generation fails", func(t *testing.T) {
		d, chat, gen := newTestDaemon(t)
		gen.banterErr = fmt.Errorf("provider down")

		require.NoError(t, d.handleBanter(banterCommand(42, "dave")))
		assert.Equal(t, banter.FallbackText("dave"), chat.last().text)
		assert.Equal(t, 1, d.registry.Len())
	})

	t.Run("abandons the session when the opener cannot be delivered", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)
		chat.sendErr = fmt.Errorf("chat not found")

		err := d.handleBanter(banterCommand(42, "dave"))
		require.Error(t, err)
		assert.Zero(t, d.registry.Len())
	})

	t.Run("refuses once the registry is closed", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)
		d.registry.Close()

		require.NoError(t, d.handleBanter(banterCommand(42, "dave")))
		assert.Contains(t, chat.last().text, "packing up")
	})
}

func TestHandleStopBanter(t *testing.T) {
	t.Run("admin cancels an active session", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)
		require.NoError(t, d.handleBanter(banterCommand(42, "dave")))

		cmd := banterCommand(42, "dave")
		cmd.Command = "stopbanter"
		require.NoError(t, d.handleStopBanter(cmd))

		assert.Zero(t, d.registry.Len())
		assert.Contains(t, chat.last().text, "off the hook")
	})

	t.Run("chat administrators may cancel too", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)
		require.NoError(t, d.handleBanter(banterCommand(42, "dave")))

		cmd := banterCommand(42, "dave")
		cmd.Command = "stopbanter"
		cmd.UserID = 7
		chat.chatAdmins[7] = true

		require.NoError(t, d.handleStopBanter(cmd))
		assert.Zero(t, d.registry.Len())
	})

	t.Run("non-admins are refused", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)
		require.NoError(t, d.handleBanter(banterCommand(42, "dave")))

		cmd := banterCommand(42, "dave")
		cmd.Command = "stopbanter"
		cmd.UserID = 9

		require.NoError(t, d.handleStopBanter(cmd))
		assert.Equal(t, 1, d.registry.Len())
		assert.Contains(t, chat.last().text, "Only admins")
	})

	t.Run("reports when there is nothing to cancel", func(t *testing.T) {
		d, chat, _ := newTestDaemon(t)

		cmd := banterCommand(42, "dave")
		cmd.Command = "stopbanter"
		require.NoError(t, d.handleStopBanter(cmd))
		assert.Contains(t, chat.last().text, "No active banter session")
	})
}

func TestHandleStatus(t *testing.T) {
	d, chat, _ := newTestDaemon(t)

	cmd := banterCommand(0, "")
	cmd.Command = "status"
	require.NoError(t, d.handleStatus(cmd))
	assert.Contains(t, chat.last().text, "No one is being roasted")

	require.NoError(t, d.handleBanter(banterCommand(42, "dave")))
	require.NoError(t, d.handleStatus(cmd))
	assert.Contains(t, chat.last().text, "dave")
}

func TestDeadline(t *testing.T) {
	d, _, _ := newTestDaemon(t)

	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	deadline := d.deadline(now)
	assert.Equal(t, time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC), deadline)
}
