// Package summarizer sends a rendered prompt to an OpenAI-compatible chat
// completion endpoint and returns the narrative text.
package summarizer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/vinodismyname/kpibrief/config"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// Summarizer calls the hosted model. It is safe for concurrent use once
// constructed.
type Summarizer struct {
	cfg         config.Service
	model       llms.Model
	lookupEnv   func(string) (string, bool)
	countTokens func(model, text string) int
}

// Option customizes a Summarizer.
type Option func(*Summarizer)

// WithModel injects a ready model; no credential is read in that case.
func WithModel(m llms.Model) Option { return func(s *Summarizer) { s.model = m } }

// WithEnv replaces os.LookupEnv for credential lookup.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(s *Summarizer) { s.lookupEnv = lookup }
}

// WithTokenCounter replaces llms.CountTokens.
func WithTokenCounter(fn func(model, text string) int) Option {
	return func(s *Summarizer) { s.countTokens = fn }
}

// New returns a Summarizer for cfg. Zero fields fall back to the defaults in
// package config.
func New(cfg config.Service, opts ...Option) *Summarizer {
	def := config.Default().Service
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.SystemRole == "" {
		cfg.SystemRole = def.SystemRole
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	s := &Summarizer{cfg: cfg, lookupEnv: os.LookupEnv, countTokens: llms.CountTokens}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Summarize sends prompt as the user message under the configured system
// role. A missing credential yields mcperr.ErrCredentialMissing; transport
// failures, timeouts and empty responses yield mcperr.ErrExternalService.
// There are no retries.
func (s *Summarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	logger := zerolog.Ctx(ctx)

	model, err := s.resolveModel()
	if err != nil {
		return "", err
	}

	tokens := s.countTokens(s.cfg.Model, prompt)
	window := llms.GetModelContextSize(s.cfg.Model)
	ev := logger.Debug()
	if tokens+s.cfg.MaxTokens > window {
		ev = logger.Warn()
	}
	ev.Str("model", s.cfg.Model).Int("prompt_tokens", tokens).Int("context_size", window).Msg("sending prompt")

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := model.GenerateContent(callCtx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, s.cfg.SystemRole),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithTemperature(s.cfg.Temperature),
		llms.WithMaxTokens(s.cfg.MaxTokens),
	)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("completion failed")
		return "", fmt.Errorf("summarizer: %w: %w", mcperr.ErrExternalService, err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("summarizer: empty response: %w", mcperr.ErrExternalService)
	}
	logger.Info().Dur("elapsed", time.Since(start)).Int("chars", len(resp.Choices[0].Content)).Msg("summary received")
	return resp.Choices[0].Content, nil
}

// Model returns the configured model name.
func (s *Summarizer) Model() string { return s.cfg.Model }

func (s *Summarizer) resolveModel() (llms.Model, error) {
	if s.model != nil {
		return s.model, nil
	}
	key := s.credential()
	if key == "" {
		return nil, fmt.Errorf("summarizer: set %s: %w", config.PrimaryAPIKeyEnv, mcperr.ErrCredentialMissing)
	}
	m, err := openai.New(
		openai.WithToken(key),
		openai.WithBaseURL(s.cfg.BaseURL),
		openai.WithModel(s.cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("summarizer: client: %w: %w", mcperr.ErrExternalService, err)
	}
	return m, nil
}

func (s *Summarizer) credential() string {
	for _, name := range []string{config.PrimaryAPIKeyEnv, config.SecondaryAPIKeyEnv} {
		if v, ok := s.lookupEnv(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
