package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrorKind classifies upstream generation failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindRateLimit
	KindInvalidInput
	KindServer
	KindTimeout
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindInvalidInput:
		return "invalid_input"
	case KindServer:
		return "server"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// UpstreamError wraps a backend failure with a classification so callers can
// decide whether a retry is worthwhile.
type UpstreamError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "upstream error"
	}
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the failure is transient (rate limit, server
// error, timeout, network). Auth and invalid-input failures are not.
func (e *UpstreamError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindRateLimit, KindServer, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

// classify maps a raw SDK error to an UpstreamError. Provider errors carry
// HTTP status codes as text, so classification inspects the message.
func classify(provider string, err error) *UpstreamError {
	if err == nil {
		return nil
	}
	out := &UpstreamError{Kind: KindUnknown, Provider: provider, Message: "completion failed", Err: err}

	if errors.Is(err, context.DeadlineExceeded) {
		out.Kind = KindTimeout
		return out
	}
	if errors.Is(err, context.Canceled) {
		out.Kind = KindTimeout
		return out
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		out.Kind = KindAuth
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "quota"):
		out.Kind = KindRateLimit
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid request"):
		out.Kind = KindInvalidInput
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "529") || strings.Contains(lower, "overloaded"):
		out.Kind = KindServer
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		out.Kind = KindTimeout
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") || strings.Contains(lower, "dial tcp") || strings.Contains(lower, "eof"):
		out.Kind = KindNetwork
	}
	return out
}
