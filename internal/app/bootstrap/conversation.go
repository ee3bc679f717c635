package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/whatsapp-ai-relay/internal/config"
	"github.com/wolfman30/whatsapp-ai-relay/internal/conversation"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// BuildConversationClient wires the conversation backend selected by
// cfg.ConversationBackend. The returned close func releases provider clients.
func BuildConversationClient(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (conversation.Client, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.ConversationBackend {
	case appconfig.BackendAssistant:
		logger.Info("using assistant thread backend", "assistant_id", cfg.OpenAIAssistantID)
		client := conversation.NewOpenAIThreadClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, conversation.ThreadClientConfig{
			AssistantID:       cfg.OpenAIAssistantID,
			PollInterval:      cfg.PollInterval,
			GenerationTimeout: cfg.GenerationTimeout,
			RequestTimeout:    cfg.SetupTimeout,
		}, logger)
		return client, func() {}, nil

	case appconfig.BackendChat:
		llm, closeLLM, err := BuildLLMClient(ctx, cfg, loadAWS, logger)
		if err != nil {
			return nil, nil, err
		}
		history, closeHistory, err := buildHistoryStore(ctx, cfg, logger)
		if err != nil {
			closeLLM()
			return nil, nil, err
		}
		logger.Info("using stateless chat backend",
			"provider", cfg.LLMProvider,
			"fallback_provider", cfg.LLMFallbackProvider,
			"history_store", cfg.ChatHistoryStore,
		)
		client := conversation.NewChatClient(llm, history, conversation.ChatClientConfig{
			HistoryLimit:      cfg.ChatHistoryLimit,
			GenerationTimeout: cfg.GenerationTimeout,
		}, logger)
		return client, func() { closeHistory(); closeLLM() }, nil

	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown conversation backend %q", cfg.ConversationBackend)
	}
}

// BuildLLMClient returns the primary provider, wrapped with the fallback
// provider when one is configured.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (conversation.LLMClient, func(), error) {
	primary, closePrimary, err := buildProvider(ctx, cfg, cfg.LLMProvider, loadAWS)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LLMFallbackProvider == "" || cfg.LLMFallbackProvider == cfg.LLMProvider {
		return primary, closePrimary, nil
	}

	fallback, closeFallback, err := buildProvider(ctx, cfg, cfg.LLMFallbackProvider, loadAWS)
	if err != nil {
		closePrimary()
		return nil, nil, err
	}
	return conversation.NewFallbackLLMClient(primary, fallback, logger.Component("llm")), func() {
		closePrimary()
		closeFallback()
	}, nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, provider string, loadAWS AWSConfigLoader) (conversation.LLMClient, func(), error) {
	switch provider {
	case appconfig.ProviderGemini:
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil

	case appconfig.ProviderBedrock:
		if loadAWS == nil {
			return nil, nil, errors.New("bootstrap: aws config loader is required for bedrock")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM provider %q", provider)
	}
}

func buildHistoryStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.HistoryStore, func(), error) {
	switch cfg.ChatHistoryStore {
	case "memory":
		logger.Warn("using in-memory chat history; conversations reset on restart")
		return conversation.NewMemoryHistoryStore(), func() {}, nil
	case "redis":
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, nil, fmt.Errorf("bootstrap: redis unavailable at %s", cfg.RedisAddr)
		}
		return conversation.NewRedisHistoryStore(client, nil), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown chat history store %q", cfg.ChatHistoryStore)
	}
}

// LoadPrimer reads the system primer text seeded into new contexts. An empty
// path yields an empty primer.
func LoadPrimer(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("bootstrap: read primer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
