package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendAssistant = "assistant"
	BackendChat      = "chat"

	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// WhatsApp Cloud API
	VerifyToken     string
	AppSecret       string
	AccessToken     string
	PhoneNumberID   string
	GraphAPIVersion string
	GraphAPIBaseURL string
	DeliveryTimeout time.Duration

	// Conversation backend
	ConversationBackend string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIAssistantID   string
	PollInterval        time.Duration
	GenerationTimeout   time.Duration
	SetupTimeout        time.Duration
	LLMProvider         string
	LLMFallbackProvider string
	GeminiAPIKey        string
	GeminiModel         string
	BedrockModelID      string
	SystemPrimerFile    string
	ChatHistoryLimit    int
	ChatHistoryStore    string

	// Session store
	SessionStore  string
	SessionDBPath string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTable  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables, after merging a
// local .env file when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		VerifyToken:     getEnv("VERIFY_TOKEN", ""),
		AppSecret:       getEnv("APP_SECRET", ""),
		AccessToken:     getEnv("ACCESS_TOKEN", ""),
		PhoneNumberID:   getEnv("PHONE_NUMBER_ID", ""),
		GraphAPIVersion: getEnv("GRAPH_API_VERSION", "v18.0"),
		GraphAPIBaseURL: strings.TrimRight(getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com"), "/"),
		DeliveryTimeout: getEnvAsDuration("DELIVERY_TIMEOUT", 10*time.Second),

		ConversationBackend: strings.ToLower(strings.TrimSpace(getEnv("CONVERSATION_BACKEND", BackendChat))),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		OpenAIAssistantID:   getEnv("OPENAI_ASSISTANT_ID", ""),
		PollInterval:        getEnvAsDuration("POLL_INTERVAL", 500*time.Millisecond),
		GenerationTimeout:   getEnvAsDuration("GENERATION_TIMEOUT", 60*time.Second),
		SetupTimeout:        getEnvAsDuration("SETUP_TIMEOUT", 15*time.Second),
		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", ProviderGemini))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		SystemPrimerFile:    getEnv("SYSTEM_PRIMER_FILE", ""),
		ChatHistoryLimit:    getEnvAsInt("CHAT_HISTORY_LIMIT", 40),
		ChatHistoryStore:    strings.ToLower(strings.TrimSpace(getEnv("CHAT_HISTORY_STORE", "redis"))),

		SessionStore:  strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "sqlite"))),
		SessionDBPath: getEnv("SESSION_DB_PATH", "data/threads.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTable:  getEnv("SESSION_TABLE", "sender_sessions"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// Validate reports every missing setting required by the selected backends.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.VerifyToken) == "" {
		errs = append(errs, errors.New("VERIFY_TOKEN is required"))
	}
	if strings.TrimSpace(c.AccessToken) == "" || strings.TrimSpace(c.PhoneNumberID) == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN and PHONE_NUMBER_ID are required"))
	}

	switch c.ConversationBackend {
	case BackendAssistant:
		if c.OpenAIAPIKey == "" || c.OpenAIAssistantID == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY and OPENAI_ASSISTANT_ID are required for the assistant backend"))
		}
	case BackendChat:
		errs = append(errs, c.validateProvider(c.LLMProvider)...)
		if c.LLMFallbackProvider != "" {
			errs = append(errs, c.validateProvider(c.LLMFallbackProvider)...)
		}
		switch c.ChatHistoryStore {
		case "redis":
			if c.RedisAddr == "" {
				errs = append(errs, errors.New("REDIS_ADDR is required for the redis chat history store"))
			}
		case "memory":
		default:
			errs = append(errs, fmt.Errorf("unknown CHAT_HISTORY_STORE %q", c.ChatHistoryStore))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CONVERSATION_BACKEND %q", c.ConversationBackend))
	}

	switch c.SessionStore {
	case "sqlite":
		if c.SessionDBPath == "" {
			errs = append(errs, errors.New("SESSION_DB_PATH is required for the sqlite session store"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres session store"))
		}
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis session store"))
		}
	case "dynamodb":
		if c.SessionTable == "" {
			errs = append(errs, errors.New("SESSION_TABLE is required for the dynamodb session store"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore))
	}

	if c.PollInterval <= 0 || c.GenerationTimeout <= 0 || c.SetupTimeout <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL, GENERATION_TIMEOUT and SETUP_TIMEOUT must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ReplyTimeout bounds one full reply: session lookup, context setup and
// generation.
func (c *Config) ReplyTimeout() time.Duration {
	return c.GenerationTimeout + c.SetupTimeout
}

// WebhookBudget is how long a webhook request keeps starting new replies.
// Each started reply may run ReplyTimeout plus the delivery timeout.
func (c *Config) WebhookBudget() time.Duration {
	return c.ReplyTimeout() + c.DeliveryTimeout
}

func (c *Config) validateProvider(provider string) []error {
	switch provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return []error{errors.New("GEMINI_API_KEY is required for the gemini provider")}
		}
	case ProviderBedrock:
		if c.BedrockModelID == "" {
			return []error{errors.New("BEDROCK_MODEL_ID is required for the bedrock provider")}
		}
	default:
		return []error{fmt.Errorf("unknown LLM provider %q", provider)}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
