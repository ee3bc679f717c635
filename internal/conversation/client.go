// Package conversation wraps the AI backend that owns multi-turn context.
//
// Two variants implement Client: ThreadClient drives the OpenAI Assistants
// API (backend-held threads and polled runs) and ChatClient drives a
// stateless chat-completion model, keeping turn history in a HistoryStore.
package conversation

import (
	"context"
	"errors"
)

var (
	// ErrBackendUnavailable means the AI service could not be reached or
	// failed the request.
	ErrBackendUnavailable = errors.New("conversation: backend unavailable")
	// ErrInvalidContext means the context id is unknown to the backend.
	ErrInvalidContext = errors.New("conversation: invalid context")
	// ErrGenerationTimeout means a reply was not ready within the configured bound.
	ErrGenerationTimeout = errors.New("conversation: generation timed out")
	// ErrNoAssistantReply means generation finished without assistant text.
	ErrNoAssistantReply = errors.New("conversation: no assistant reply")
)

// ContextStatus is the outcome of VerifyContext.
type ContextStatus int

const (
	ContextInvalid ContextStatus = iota
	ContextValid
)

func (s ContextStatus) String() string {
	if s == ContextValid {
		return "valid"
	}
	return "invalid"
}

// Client is the capability the orchestrator drives: create a context, check
// a stored one, add a user turn and wait for the generated reply.
type Client interface {
	CreateContext(ctx context.Context, systemPrimer string) (string, error)
	// VerifyContext returns ContextInvalid with a nil error for stale ids.
	VerifyContext(ctx context.Context, contextID string) (ContextStatus, error)
	AppendUserMessage(ctx context.Context, contextID, text string) error
	RunAndAwaitReply(ctx context.Context, contextID string) (string, error)
}
