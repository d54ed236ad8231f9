package persona

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()

	assert.NotEmpty(t, p.SystemPrompt)
	assert.Contains(t, p.BanterPrompt, "%s")
	assert.Contains(t, p.ReplyPrompt, "%s")
	assert.Equal(t, "What's your business, traveler?", p.Greeting)
}

func TestLoad(t *testing.T) {
	t.Run("missing file returns default", func(t *testing.T) {
		p, err := Load(filepath.Join(t.TempDir(), "persona.json"))
		require.NoError(t, err)
		assert.Equal(t, Default(), p)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "persona.json")
		content := `{
			"system_prompt": "You are a pirate.",
			"banter_prompt": "Taunt %s like a pirate.",
			"reply_prompt": "Answer %s who said: %s"
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		p, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "You are a pirate.", p.SystemPrompt)
		assert.Equal(t, "Taunt %s like a pirate.", p.BanterPrompt)

		// Greeting falls back to the default when omitted
		assert.Equal(t, Default().Greeting, p.Greeting)
	})

	t.Run("missing required field", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "persona.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"system_prompt": "x"}`), 0600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid persona file")
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "persona.json")
		content := `{
			"system_prompt": "a",
			"banter_prompt": "b %s",
			"reply_prompt": "c %s %s",
			"surprise": true
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "persona.json")
		require.NoError(t, os.WriteFile(path, []byte("{nope"), 0600))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.json")

	valid := `{
		"system_prompt": "You are a pirate.",
		"banter_prompt": "Taunt %s.",
		"reply_prompt": "Answer %s: %s"
	}`
	require.NoError(t, os.WriteFile(path, []byte(valid), 0600))

	var mu sync.Mutex
	var reloaded []Persona
	w, err := NewWatcher(path, func(p Persona) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = append(reloaded, p)
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	updated := `{
		"system_prompt": "You are a knight.",
		"banter_prompt": "Challenge %s.",
		"reply_prompt": "Answer %s: %s"
	}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range reloaded {
			if p.SystemPrompt == "You are a knight." {
				return true
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.json")

	var mu sync.Mutex
	count := 0
	w, err := NewWatcher(path, func(Persona) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"system_prompt": "only"}`), 0600))

	// Give the debounce a chance to fire; the invalid file must not
	// trigger a reload callback.
	time.Sleep(600 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestWatcher_StopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.json")

	w, err := NewWatcher(path, func(Persona) {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
