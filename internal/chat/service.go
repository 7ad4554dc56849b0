// Package chat implements the session-scoped conversational memory service:
// one buffer per client-chosen session id, exchanges serialized per session,
// history appended only after the upstream model produced a reply.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/edustack-labs/edustack/internal/chat/archive"
	"github.com/edustack-labs/edustack/internal/llm"
)

// DefaultSessionID scopes requests that do not name a session.
const DefaultSessionID = "default"

// ErrEmptyMessage is returned for blank user input. The HTTP boundary rejects
// it before any provider call is made.
var ErrEmptyMessage = errors.New("empty message")

// Options configures the chat service.
type Options struct {
	Logger   *slog.Logger
	Provider llm.Provider

	// Archive receives completed exchanges for durable transcripts. Optional;
	// archive failures are logged, never surfaced to the caller.
	Archive *archive.Store

	// MaxTurns caps each session buffer. 0 means unbounded.
	MaxTurns int

	// SystemPrompt is prepended to every completion context.
	SystemPrompt string
}

// Service owns the session registry and runs exchanges against the provider.
type Service struct {
	log      *slog.Logger
	provider llm.Provider
	archive  *archive.Store
	maxTurns int
	system   string

	registry *Registry
}

func NewService(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("missing Provider")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		log:      logger,
		provider: opts.Provider,
		archive:  opts.Archive,
		maxTurns: opts.MaxTurns,
		system:   strings.TrimSpace(opts.SystemPrompt),
	}
	s.registry = newRegistry(s)
	return s, nil
}

// Registry exposes the session registry (used by handlers and tests).
func (s *Service) Registry() *Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// Close stops all session actors.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.registry.Close()
}

// Exchange produces a reply for one user utterance within the session's
// running context. sessionID falls back to DefaultSessionID when blank.
// Exchanges for the same session are serialized; distinct sessions proceed in
// parallel.
func (s *Service) Exchange(ctx context.Context, sessionID string, userText string) (string, error) {
	if s == nil {
		return "", errors.New("service not ready")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(userText) == "" {
		return "", ErrEmptyMessage
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	a := s.registry.actor(sessionID)
	if a == nil {
		return "", errors.New("service shutting down")
	}
	return a.Exchange(ctx, userText)
}

// performExchange runs inside the session actor. The buffer is appended only
// after a successful completion, so a retry after an upstream failure sees
// the prior state unchanged.
func (s *Service) performExchange(ctx context.Context, sess *Session, userText string) (string, error) {
	if s == nil || sess == nil {
		return "", errors.New("service not ready")
	}

	req := llm.Request{
		System:   s.system,
		Messages: append(sess.Buffer.History(), llm.Message{Role: llm.RoleUser, Content: userText}),
	}

	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		s.log.Warn("completion failed", "session_id", sess.ID, "error", err)
		return "", err
	}

	sess.Buffer.AppendExchange(userText, resp.Text)

	if s.archive != nil {
		if err := s.archive.RecordExchange(ctx, sess.ID, userText, resp.Text); err != nil {
			s.log.Warn("transcript archive write failed", "session_id", sess.ID, "error", err)
		}
	}

	s.log.Debug("exchange completed",
		"session_id", sess.ID,
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp.Text, nil
}
