// Package orchestrator turns one inbound sender message into one reply text,
// keeping each sender bound to a single live conversation context.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/whatsapp-ai-relay/internal/conversation"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/internal/session"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// Fallback replies sent to the user when generation fails.
const (
	FallbackSetup     = "An error occurred while setting up your conversation. Please try again."
	FallbackNoReply   = "I couldn't generate a response. Please try again."
	FallbackTimeout   = "Sorry, that took longer than expected. Please try again in a moment."
	FallbackGenerated = "An error occurred while generating a response. Please try again."
)

// Failure kinds used in logs and metrics.
const (
	outcomeOK   = "ok"
	kindSetup   = "setup"
	kindNoReply = "no_reply"
	kindTimeout = "timeout"
	kindBackend = "backend"
)

// errSetup marks failures while establishing the sender's context.
var errSetup = errors.New("orchestrator: context setup failed")

// Orchestrator coordinates the session store and the conversation client.
type Orchestrator struct {
	store   session.Store
	client  conversation.Client
	primer  string
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.RelayMetrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPrimer seeds every newly created context with the given system text.
func WithPrimer(primer string) Option {
	return func(o *Orchestrator) {
		o.primer = primer
	}
}

// WithTimeout bounds each GenerateReply call from session lookup through
// the final reply. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func New(store session.Store, client conversation.Client, opts ...Option) *Orchestrator {
	if store == nil {
		panic("orchestrator: session store cannot be nil")
	}
	if client == nil {
		panic("orchestrator: conversation client cannot be nil")
	}
	o := &Orchestrator{
		store:  store,
		client: client,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Component("orchestrator")
	return o
}

// GenerateReply returns the assistant's reply to text, or a fixed fallback
// message when any step fails. It never returns an empty string.
func (o *Orchestrator) GenerateReply(ctx context.Context, senderID, name, text string) string {
	start := time.Now()
	log := o.logger.With("sender_id", senderID)

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	reply, err := o.generate(ctx, log, senderID, text)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, conversation.ErrGenerationTimeout) {
		err = fmt.Errorf("%w: reply deadline passed: %w", conversation.ErrGenerationTimeout, err)
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		kind, fallback := classify(err)
		log.Error("reply generation failed", "failure_kind", kind, "error", err)
		o.metrics.ObserveReply(kind, elapsed)
		return fallback
	}

	log.Info("reply generated", "name", name, "duration_seconds", elapsed)
	o.metrics.ObserveReply(outcomeOK, elapsed)
	return reply
}

func (o *Orchestrator) generate(ctx context.Context, log *logging.Logger, senderID, text string) (string, error) {
	contextID, err := o.resolveContext(ctx, log, senderID)
	if err != nil {
		return "", err
	}

	err = o.client.AppendUserMessage(ctx, contextID, text)
	if errors.Is(err, conversation.ErrInvalidContext) {
		// The context vanished after verification; replace it once.
		log.Warn("context rejected on append, replacing", "context_id", contextID)
		contextID, err = o.replaceContext(ctx, log, senderID, contextID)
		if err != nil {
			return "", err
		}
		err = o.client.AppendUserMessage(ctx, contextID, text)
	}
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	reply, err := o.client.RunAndAwaitReply(ctx, contextID)
	if err != nil {
		return "", fmt.Errorf("run: %w", err)
	}
	return reply, nil
}

// resolveContext returns the sender's live context id, creating or replacing
// it as needed. The mapping is durable before the id is returned.
func (o *Orchestrator) resolveContext(ctx context.Context, log *logging.Logger, senderID string) (string, error) {
	contextID, found, err := o.store.Lookup(ctx, senderID)
	if err != nil {
		log.Warn("session lookup failed, treating as new sender", "error", err)
		found = false
	}

	if !found {
		contextID, err = o.createContext(ctx, senderID)
		if err != nil {
			return "", err
		}
		log.Info("conversation context created", "context_id", contextID)
		return contextID, nil
	}

	status, err := o.client.VerifyContext(ctx, contextID)
	if err != nil {
		return "", fmt.Errorf("verify context: %w", err)
	}
	if status == conversation.ContextValid {
		return contextID, nil
	}
	return o.replaceContext(ctx, log, senderID, contextID)
}

func (o *Orchestrator) replaceContext(ctx context.Context, log *logging.Logger, senderID, staleID string) (string, error) {
	contextID, err := o.createContext(ctx, senderID)
	if err != nil {
		return "", err
	}
	o.metrics.IncContextRecovery()
	log.Info("conversation context replaced", "stale_context_id", staleID, "context_id", contextID)
	return contextID, nil
}

func (o *Orchestrator) createContext(ctx context.Context, senderID string) (string, error) {
	contextID, err := o.client.CreateContext(ctx, o.primer)
	if err != nil {
		return "", fmt.Errorf("%w: create: %w", errSetup, err)
	}
	if err := o.store.Store(ctx, senderID, contextID); err != nil {
		return "", fmt.Errorf("%w: store mapping: %w", errSetup, err)
	}
	return contextID, nil
}

func classify(err error) (kind, fallback string) {
	switch {
	case errors.Is(err, errSetup):
		return kindSetup, FallbackSetup
	case errors.Is(err, conversation.ErrNoAssistantReply):
		return kindNoReply, FallbackNoReply
	case errors.Is(err, conversation.ErrGenerationTimeout):
		return kindTimeout, FallbackTimeout
	default:
		return kindBackend, FallbackGenerated
	}
}
