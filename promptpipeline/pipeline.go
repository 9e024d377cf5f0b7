// Package promptpipeline moderates free text, routes it into a structured
// prompt, and optionally drafts lyrics, using an injected chatmodel.ChatModel.
// The three stages are methods on Pipeline. The moderate stage is also
// available as a core.Runnable (NewModerateRunnable) that runs the built-in
// guards before the LLM moderation call; the route and lyrics stages have no
// core.Runnable form.
package promptpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/chatmodel"
	"github.com/musicarena/fabric/core"
	"github.com/musicarena/fabric/guard"
	"github.com/musicarena/fabric/o11y"
)

// DetailedTextToMusicPrompt is the structured prompt consumed by generators.
type DetailedTextToMusicPrompt struct {
	OverallPrompt string
	Duration      float64
	Instrumental  bool
	Lyrics        *string
	LyricsTheme   *string
	LyricsStyle   *string
	Seed          int32
}

// Validate enforces the DetailedTextToMusicPrompt invariant: instrumental
// prompts must not carry lyrics.
func (p DetailedTextToMusicPrompt) Validate() error {
	if p.Instrumental && p.Lyrics != nil {
		return apperrors.Validation("promptpipeline.Validate", "instrumental prompt must not carry lyrics")
	}
	if p.Duration <= 0 || p.Duration > 300 {
		return apperrors.Validation("promptpipeline.Validate", "duration must be in (0, 300]")
	}
	return nil
}

// ModerationResult is the outcome of the moderate stage.
type ModerationResult struct {
	Safe   bool
	Reason string
}

// Pipeline wraps a chatmodel.ChatModel with the three-stage moderate/route/
// lyrics pipeline and an in-memory result cache keyed by (hash(text),
// config_tag).
type Pipeline struct {
	model     chatmodel.ChatModel
	configTag string
	logger    *o11y.Logger

	mu             sync.Mutex
	moderateCache  map[string]ModerationResult
	routeCache     map[string]DetailedTextToMusicPrompt
	lyricsCache    map[string]string
}

// New creates a Pipeline. configTag identifies the provider configuration
// (e.g. model name + version) so cache entries do not leak across
// configuration changes.
func New(model chatmodel.ChatModel, configTag string, logger *o11y.Logger) *Pipeline {
	return &Pipeline{
		model:         model,
		configTag:     configTag,
		logger:        logger,
		moderateCache: make(map[string]ModerationResult),
		routeCache:    make(map[string]DetailedTextToMusicPrompt),
		lyricsCache:   make(map[string]string),
	}
}

func cacheKey(text, configTag string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]) + ":" + configTag
}

// Moderate classifies free text as safe or unsafe. Unsafe prompts should be
// surfaced to the caller as apperrors.PromptRejected.
func (p *Pipeline) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	key := cacheKey(text, p.configTag)

	p.mu.Lock()
	if cached, ok := p.moderateCache[key]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	resp, err := p.model.Generate(ctx, chatmodel.Request{
		Messages: []chatmodel.Message{
			{Role: chatmodel.RoleSystem, Content: moderationSystemPrompt},
			{Role: chatmodel.RoleUser, Content: text},
		},
		MaxTokens: 256,
	})
	if err != nil {
		return ModerationResult{}, apperrors.Internal("promptpipeline.Moderate", err)
	}

	var parsed struct {
		Safe   bool   `json:"safe"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		// A provider that does not return structured JSON is treated as a
		// pass-through safe classification; the moderation contract does
		// not require the upstream provider to be adversarially robust.
		parsed.Safe = true
	}
	result := ModerationResult{Safe: parsed.Safe, Reason: parsed.Reason}

	p.mu.Lock()
	p.moderateCache[key] = result
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info(ctx, "moderation complete", "safe", result.Safe)
	}
	return result, nil
}

// Route fills duration, instrumental flag, and lyrics hints for free text.
// Deterministic given the same provider config and cached by (hash(text),
// config_tag).
func (p *Pipeline) Route(ctx context.Context, text string, durationHint *float64, instrumentalHint *bool) (DetailedTextToMusicPrompt, error) {
	key := cacheKey(text, p.configTag)

	p.mu.Lock()
	if cached, ok := p.routeCache[key]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	resp, err := p.model.Generate(ctx, chatmodel.Request{
		Messages: []chatmodel.Message{
			{Role: chatmodel.RoleSystem, Content: routingSystemPrompt},
			{Role: chatmodel.RoleUser, Content: text},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return DetailedTextToMusicPrompt{}, apperrors.Internal("promptpipeline.Route", err)
	}

	var parsed struct {
		Duration     float64 `json:"duration"`
		Instrumental bool    `json:"instrumental"`
		LyricsTheme  string  `json:"lyrics_theme"`
		LyricsStyle  string  `json:"lyrics_style"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		parsed.Duration = 30
	}
	if durationHint != nil {
		parsed.Duration = *durationHint
	}
	if instrumentalHint != nil {
		parsed.Instrumental = *instrumentalHint
	}
	if parsed.Duration <= 0 || parsed.Duration > 300 {
		parsed.Duration = 30
	}

	result := DetailedTextToMusicPrompt{
		OverallPrompt: text,
		Duration:      parsed.Duration,
		Instrumental:  parsed.Instrumental,
	}
	if parsed.LyricsTheme != "" {
		result.LyricsTheme = &parsed.LyricsTheme
	}
	if parsed.LyricsStyle != "" {
		result.LyricsStyle = &parsed.LyricsStyle
	}

	p.mu.Lock()
	p.routeCache[key] = result
	p.mu.Unlock()
	return result, nil
}

// GenerateLyrics drafts lyrics for a routed prompt. Callers should only
// invoke this when the selected systems require lyrics, the prompt does not
// already supply them, and the prompt is not instrumental.
func (p *Pipeline) GenerateLyrics(ctx context.Context, prompt DetailedTextToMusicPrompt) (string, error) {
	if prompt.Instrumental {
		return "", apperrors.Validation("promptpipeline.GenerateLyrics", "cannot generate lyrics for an instrumental prompt")
	}

	key := cacheKey(prompt.OverallPrompt, p.configTag)
	p.mu.Lock()
	if cached, ok := p.lyricsCache[key]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	theme := ""
	if prompt.LyricsTheme != nil {
		theme = *prompt.LyricsTheme
	}
	style := ""
	if prompt.LyricsStyle != nil {
		style = *prompt.LyricsStyle
	}

	resp, err := p.model.Generate(ctx, chatmodel.Request{
		Messages: []chatmodel.Message{
			{Role: chatmodel.RoleSystem, Content: lyricsSystemPrompt},
			{Role: chatmodel.RoleUser, Content: fmt.Sprintf("prompt: %s\ntheme: %s\nstyle: %s", prompt.OverallPrompt, theme, style)},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", apperrors.Internal("promptpipeline.GenerateLyrics", err)
	}

	p.mu.Lock()
	p.lyricsCache[key] = resp.Content
	p.mu.Unlock()
	return resp.Content, nil
}

const moderationSystemPrompt = `You moderate prompts for a text-to-music system. ` +
	`Respond with JSON {"safe": bool, "reason": string} only.`

const routingSystemPrompt = `You convert free-text music requests into structured generation parameters. ` +
	`Respond with JSON {"duration": float seconds up to 300, "instrumental": bool, "lyrics_theme": string, "lyrics_style": string} only.`

const lyricsSystemPrompt = `You write song lyrics matching the given prompt, theme, and style. Respond with lyrics text only.`

// guardChain wraps the built-in content/injection guards ahead of the
// moderate stage, composed via guard's registry the same way the core
// package composes Runnables.
func guardChain(names ...string) ([]guard.Guard, error) {
	guards := make([]guard.Guard, 0, len(names))
	for _, name := range names {
		g, err := guard.New(name, nil)
		if err != nil {
			return nil, fmt.Errorf("promptpipeline: %w", err)
		}
		guards = append(guards, g)
	}
	return guards, nil
}

// moderateRunnable adapts Pipeline.Moderate to core.Runnable so it can be
// composed with core.Pipe ahead of the route stage.
type moderateRunnable struct {
	p      *Pipeline
	guards []guard.Guard
}

// NewModerateRunnable builds a core.Runnable that runs the built-in guards
// before the LLM-backed moderation call, rejecting early on a local guard
// hit to avoid paying for an LLM call on obviously unsafe input.
func NewModerateRunnable(p *Pipeline, guardNames ...string) (core.Runnable, error) {
	guards, err := guardChain(guardNames...)
	if err != nil {
		return nil, err
	}
	return &moderateRunnable{p: p, guards: guards}, nil
}

func (m *moderateRunnable) Invoke(ctx context.Context, input any, opts ...core.Option) (any, error) {
	text, ok := input.(string)
	if !ok {
		return nil, apperrors.Internal("promptpipeline.moderateRunnable", fmt.Errorf("expected string input"))
	}
	for _, g := range m.guards {
		result, err := g.Validate(ctx, guard.GuardInput{Content: text, Role: "input"})
		if err != nil {
			return nil, apperrors.Internal("promptpipeline.moderateRunnable", err)
		}
		if !result.Allowed {
			return nil, apperrors.PromptRejected("promptpipeline.Moderate", result.Reason)
		}
	}

	result, err := m.p.Moderate(ctx, text)
	if err != nil {
		return nil, err
	}
	if !result.Safe {
		return nil, apperrors.PromptRejected("promptpipeline.Moderate", result.Reason)
	}
	return text, nil
}

func (m *moderateRunnable) Stream(ctx context.Context, input any, opts ...core.Option) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		result, err := m.Invoke(ctx, input, opts...)
		yield(result, err)
	}
}
