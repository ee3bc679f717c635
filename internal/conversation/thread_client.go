package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

var threadTracer = otel.Tracer("whatsapp-relay.internal.conversation.thread")

const (
	defaultPollInterval      = 500 * time.Millisecond
	defaultGenerationTimeout = 60 * time.Second
	defaultRequestTimeout    = 30 * time.Second
	primerMetadataKind       = "primer"
)

type assistantsAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	RetrieveThread(ctx context.Context, threadID string) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	CancelRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
}

// ThreadClientConfig tunes a ThreadClient.
type ThreadClientConfig struct {
	AssistantID       string
	PollInterval      time.Duration
	GenerationTimeout time.Duration
	// RequestTimeout caps each HTTP call to the Assistants API.
	RequestTimeout time.Duration
}

// ThreadClient keeps context in OpenAI Assistants threads. Each reply is a run
// polled at a fixed interval until it reaches a terminal state.
type ThreadClient struct {
	api    assistantsAPI
	cfg    ThreadClientConfig
	logger *logging.Logger
}

// NewOpenAIThreadClient builds a ThreadClient on a go-openai client. An empty
// baseURL keeps the public API endpoint.
func NewOpenAIThreadClient(apiKey, baseURL string, cfg ThreadClientConfig, logger *logging.Logger) *ThreadClient {
	oaCfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		oaCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	oaCfg.HTTPClient = &http.Client{Timeout: timeout}
	return NewThreadClient(openai.NewClientWithConfig(oaCfg), cfg, logger)
}

func NewThreadClient(api assistantsAPI, cfg ThreadClientConfig, logger *logging.Logger) *ThreadClient {
	if api == nil {
		panic("conversation: assistants client cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ThreadClient{
		api:    api,
		cfg:    cfg,
		logger: logger.Component("thread_client"),
	}
}

func (c *ThreadClient) CreateContext(ctx context.Context, systemPrimer string) (string, error) {
	ctx, span := threadTracer.Start(ctx, "conversation.create_thread")
	defer span.End()

	req := openai.ThreadRequest{}
	if primer := strings.TrimSpace(systemPrimer); primer != "" {
		req.Messages = []openai.ThreadMessage{{
			Role:     openai.ThreadMessageRoleUser,
			Content:  primer,
			Metadata: map[string]any{"kind": primerMetadataKind},
		}}
	}
	thread, err := c.api.CreateThread(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create thread failed")
		return "", fmt.Errorf("%w: create thread: %w", ErrBackendUnavailable, err)
	}
	span.SetAttributes(attribute.String("relay.thread_id", thread.ID))
	return thread.ID, nil
}

func (c *ThreadClient) VerifyContext(ctx context.Context, contextID string) (ContextStatus, error) {
	if strings.TrimSpace(contextID) == "" {
		return ContextInvalid, nil
	}
	ctx, span := threadTracer.Start(ctx, "conversation.retrieve_thread")
	defer span.End()

	if _, err := c.api.RetrieveThread(ctx, contextID); err != nil {
		if isStaleThread(err, true) {
			return ContextInvalid, nil
		}
		span.RecordError(err)
		return ContextInvalid, fmt.Errorf("%w: retrieve thread: %w", ErrBackendUnavailable, err)
	}
	return ContextValid, nil
}

func (c *ThreadClient) AppendUserMessage(ctx context.Context, contextID, text string) error {
	ctx, span := threadTracer.Start(ctx, "conversation.create_message")
	defer span.End()

	_, err := c.api.CreateMessage(ctx, contextID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: text,
	})
	if err != nil {
		span.RecordError(err)
		if isStaleThread(err, false) {
			return fmt.Errorf("%w: %s", ErrInvalidContext, contextID)
		}
		return fmt.Errorf("%w: create message: %w", ErrBackendUnavailable, err)
	}
	return nil
}

func (c *ThreadClient) RunAndAwaitReply(ctx context.Context, contextID string) (string, error) {
	ctx, span := threadTracer.Start(ctx, "conversation.run")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.GenerationTimeout)
	defer cancel()

	run, err := c.api.CreateRun(ctx, contextID, openai.RunRequest{AssistantID: c.cfg.AssistantID})
	if err != nil {
		span.RecordError(err)
		if isStaleThread(err, false) {
			return "", fmt.Errorf("%w: %s", ErrInvalidContext, contextID)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: create run", ErrGenerationTimeout)
		}
		return "", fmt.Errorf("%w: create run: %w", ErrBackendUnavailable, err)
	}
	span.SetAttributes(attribute.String("relay.run_id", run.ID))

	run, err = c.awaitRun(ctx, contextID, run)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run did not complete")
		return "", err
	}

	return c.latestAssistantText(ctx, contextID, run.ID)
}

// awaitRun polls the run without backoff until it leaves the queued or
// in-progress states, or the context deadline passes.
func (c *ThreadClient) awaitRun(ctx context.Context, threadID string, run openai.Run) (openai.Run, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired, openai.RunStatusIncomplete:
			return run, fmt.Errorf("%w: run %s ended %s%s", ErrBackendUnavailable, run.ID, run.Status, describeRunError(run.LastError))
		case openai.RunStatusRequiresAction:
			// No tools are registered, so nothing can satisfy the action.
			if _, err := c.api.CancelRun(context.WithoutCancel(ctx), threadID, run.ID); err != nil {
				c.logger.Warn("failed to cancel run awaiting action", "context_id", threadID, "run_id", run.ID, "error", err)
			}
			return run, fmt.Errorf("%w: run %s requires action", ErrNoAssistantReply, run.ID)
		}

		select {
		case <-ctx.Done():
			c.cancelAbandoned(ctx, threadID, run.ID)
			return run, fmt.Errorf("%w: run %s still %s after %s", ErrGenerationTimeout, run.ID, run.Status, c.cfg.GenerationTimeout)
		case <-ticker.C:
		}

		next, err := c.api.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				c.cancelAbandoned(ctx, threadID, run.ID)
				return run, fmt.Errorf("%w: run %s still %s after %s", ErrGenerationTimeout, run.ID, run.Status, c.cfg.GenerationTimeout)
			}
			return run, fmt.Errorf("%w: retrieve run: %w", ErrBackendUnavailable, err)
		}
		run = next
	}
}

func (c *ThreadClient) cancelAbandoned(ctx context.Context, threadID, runID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := c.api.CancelRun(cancelCtx, threadID, runID); err != nil {
		c.logger.Warn("failed to cancel timed out run", "context_id", threadID, "run_id", runID, "error", err)
	}
}

func (c *ThreadClient) latestAssistantText(ctx context.Context, threadID, runID string) (string, error) {
	order := "desc"
	limit := 20
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: list messages", ErrGenerationTimeout)
		}
		return "", fmt.Errorf("%w: list messages: %w", ErrBackendUnavailable, err)
	}

	for _, msg := range list.Messages {
		if msg.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		if msg.RunID != nil && *msg.RunID != runID {
			continue
		}
		var text strings.Builder
		for _, content := range msg.Content {
			if content.Text != nil {
				text.WriteString(content.Text.Value)
			}
		}
		if reply := strings.TrimSpace(text.String()); reply != "" {
			return reply, nil
		}
	}
	return "", ErrNoAssistantReply
}

// isStaleThread reports whether the backend rejected the thread id itself.
// A 400 only counts on thread lookups: on writes it also signals an active run.
func isStaleThread(err error, lookup bool) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status == http.StatusNotFound || (lookup && status == http.StatusBadRequest)
}

func describeRunError(lastErr *openai.RunLastError) string {
	if lastErr == nil {
		return ""
	}
	return fmt.Sprintf(" (%s: %s)", lastErr.Code, lastErr.Message)
}
