package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

const defaultHistoryLimit = 40

// ChatClientConfig tunes a ChatClient.
type ChatClientConfig struct {
	Model             string
	HistoryLimit      int
	GenerationTimeout time.Duration
}

// ChatClient keeps conversation context on the relay side: every context id
// names a history in the HistoryStore, and each run replays it to a stateless
// LLM.
type ChatClient struct {
	llm     LLMClient
	history HistoryStore
	cfg     ChatClientConfig
	logger  *logging.Logger
}

func NewChatClient(llm LLMClient, history HistoryStore, cfg ChatClientConfig, logger *logging.Logger) *ChatClient {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if history == nil {
		panic("conversation: history store cannot be nil")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatClient{
		llm:     llm,
		history: history,
		cfg:     cfg,
		logger:  logger.Component("chat_client"),
	}
}

func (c *ChatClient) CreateContext(ctx context.Context, systemPrimer string) (string, error) {
	id := uuid.NewString()
	history := []ChatMessage{}
	if primer := strings.TrimSpace(systemPrimer); primer != "" {
		history = append(history, ChatMessage{Role: ChatRoleSystem, Content: primer})
	}
	if err := c.history.Save(ctx, id, history); err != nil {
		return "", fmt.Errorf("%w: create context: %w", ErrBackendUnavailable, err)
	}
	return id, nil
}

func (c *ChatClient) VerifyContext(ctx context.Context, contextID string) (ContextStatus, error) {
	if strings.TrimSpace(contextID) == "" {
		return ContextInvalid, nil
	}
	ok, err := c.history.Exists(ctx, contextID)
	if err != nil {
		return ContextInvalid, fmt.Errorf("%w: verify context: %w", ErrBackendUnavailable, err)
	}
	if !ok {
		return ContextInvalid, nil
	}
	return ContextValid, nil
}

func (c *ChatClient) AppendUserMessage(ctx context.Context, contextID, text string) error {
	history, err := c.load(ctx, contextID)
	if err != nil {
		return err
	}
	history = append(history, ChatMessage{Role: ChatRoleUser, Content: text})
	if err := c.history.Save(ctx, contextID, history); err != nil {
		return fmt.Errorf("%w: append message: %w", ErrBackendUnavailable, err)
	}
	return nil
}

func (c *ChatClient) RunAndAwaitReply(ctx context.Context, contextID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.GenerationTimeout)
	defer cancel()

	history, err := c.load(ctx, contextID)
	if err != nil {
		return "", err
	}

	system, turns := splitHistory(history)
	if len(turns) == 0 || turns[len(turns)-1].Role != ChatRoleUser {
		return "", fmt.Errorf("%w: no pending user message", ErrNoAssistantReply)
	}

	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:    c.cfg.Model,
		System:   system,
		Messages: trimTurns(turns, c.cfg.HistoryLimit),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: after %s", ErrGenerationTimeout, c.cfg.GenerationTimeout)
		}
		return "", fmt.Errorf("%w: completion: %w", ErrBackendUnavailable, err)
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return "", ErrNoAssistantReply
	}

	history = append(history, ChatMessage{Role: ChatRoleAssistant, Content: reply})
	if err := c.history.Save(context.WithoutCancel(ctx), contextID, history); err != nil {
		c.logger.Warn("failed to persist assistant reply", "context_id", contextID, "error", err)
	}
	c.logger.Debug("reply generated",
		"context_id", contextID,
		"stop_reason", resp.StopReason,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return reply, nil
}

func (c *ChatClient) load(ctx context.Context, contextID string) ([]ChatMessage, error) {
	history, err := c.history.Load(ctx, contextID)
	if err != nil {
		if errors.Is(err, ErrHistoryNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidContext, contextID)
		}
		return nil, fmt.Errorf("%w: load history: %w", ErrBackendUnavailable, err)
	}
	return history, nil
}

func splitHistory(history []ChatMessage) ([]string, []ChatMessage) {
	var system []string
	turns := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role == ChatRoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	return system, turns
}

// trimTurns keeps at most limit trailing turns and drops leading assistant
// turns so the window always opens with the user.
func trimTurns(turns []ChatMessage, limit int) []ChatMessage {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	for len(turns) > 1 && turns[0].Role != ChatRoleUser {
		turns = turns[1:]
	}
	return turns
}
