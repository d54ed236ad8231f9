package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/banter/internal/persona"
)

// Provider is an LLM backend able to complete a single prompt
type Provider interface {
	Provider() string
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// Profile describes one provider credential. The highest-priority profile
// with a known provider wins.
type Profile struct {
	ID       string
	Provider string // openai, anthropic
	APIKey   string
	Model    string
	Priority int
}

// Config configures a Generator
type Config struct {
	Profiles []Profile
	Persona  persona.Persona
	Logger   zerolog.Logger

	// Test seam; defaults to the real provider constructors.
	NewProvider func(Profile) (Provider, error)
}

// Generator produces banter text for a subject, optionally seeded with the
// text of a reply. Generation failures surface to the caller; callers are
// expected to substitute a fallback and carry on.
type Generator struct {
	provider Provider
	model    string
	logger   zerolog.Logger

	mu      sync.RWMutex
	persona persona.Persona
}

func defaultNewProvider(p Profile) (Provider, error) {
	switch p.Provider {
	case "openai":
		return NewOpenAIProvider(p.APIKey), nil
	case "anthropic":
		return NewAnthropicProvider(p.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Provider)
	}
}

// New creates a generator from the configured provider profiles
func New(cfg Config) (*Generator, error) {
	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("at least one provider profile is required")
	}
	if cfg.NewProvider == nil {
		cfg.NewProvider = defaultNewProvider
	}

	profiles := append([]Profile(nil), cfg.Profiles...)
	sort.SliceStable(profiles, func(i, j int) bool { return profiles[i].Priority > profiles[j].Priority })

	var provider Provider
	var model string
	var lastErr error
	for _, p := range profiles {
		prov, err := cfg.NewProvider(p)
		if err != nil {
			lastErr = err
			continue
		}
		provider = prov
		model = p.Model
		break
	}
	if provider == nil {
		return nil, fmt.Errorf("no usable provider profile: %w", lastErr)
	}

	if model == "" {
		model = defaultModel(provider.Provider())
	}

	pers := cfg.Persona
	if pers.SystemPrompt == "" {
		pers = persona.Default()
	}

	return &Generator{
		provider: provider,
		model:    model,
		logger:   cfg.Logger.With().Str("component", "generator").Logger(),
		persona:  pers,
	}, nil
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4"
	default:
		return "gpt-4o-mini"
	}
}

// SetPersona swaps the active persona. Called by the hot-reload watcher.
func (g *Generator) SetPersona(p persona.Persona) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persona = p
}

// Persona returns the active persona
func (g *Generator) Persona() persona.Persona {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.persona
}

// Banter generates an unprovoked banter message aimed at the subject
func (g *Generator) Banter(ctx context.Context, subjectName string) (string, error) {
	p := g.Persona()
	return g.complete(ctx, p.SystemPrompt, fmt.Sprintf(p.BanterPrompt, subjectName))
}

// Reply generates a response to a subject's reply message
func (g *Generator) Reply(ctx context.Context, replierName, message string) (string, error) {
	p := g.Persona()
	return g.complete(ctx, p.SystemPrompt, fmt.Sprintf(p.ReplyPrompt, replierName, message))
}

func (g *Generator) complete(ctx context.Context, system, user string) (string, error) {
	text, err := g.provider.Complete(ctx, g.model, system, user)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("provider", g.provider.Provider()).
			Str("model", g.model).
			Msg("Completion failed")
		return "", fmt.Errorf("%s completion failed: %w", g.provider.Provider(), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s returned an empty completion", g.provider.Provider())
	}
	return text, nil
}
