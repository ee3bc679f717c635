package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const conversationTTL = 24 * time.Hour

// ErrHistoryNotFound is returned by Load when no history exists for an id.
var ErrHistoryNotFound = errors.New("conversation: history not found")

// HistoryStore keeps chat turns for ChatClient between webhook calls.
type HistoryStore interface {
	Save(ctx context.Context, conversationID string, history []ChatMessage) error
	Load(ctx context.Context, conversationID string) ([]ChatMessage, error)
	Exists(ctx context.Context, conversationID string) (bool, error)
}

// RedisHistoryStore keeps history as JSON under conversation:<id> with a
// sliding 24h expiry.
type RedisHistoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

func NewRedisHistoryStore(client *redis.Client, tracer trace.Tracer) *RedisHistoryStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("whatsapp-relay.internal.conversation.history")
	}
	return &RedisHistoryStore{
		redis:  client,
		tracer: tracer,
		ttl:    conversationTTL,
	}
}

func (s *RedisHistoryStore) Save(ctx context.Context, conversationID string, history []ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_history")
	defer span.End()

	if history == nil {
		history = []ChatMessage{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

func (s *RedisHistoryStore) Load(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrHistoryNotFound, conversationID)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
	}
	return history, nil
}

func (s *RedisHistoryStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.history_exists")
	defer span.End()

	n, err := s.redis.Exists(ctx, conversationKey(conversationID)).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("conversation: failed to check history: %w", err)
	}
	return n > 0, nil
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

// MemoryHistoryStore is a process-local HistoryStore without expiry.
type MemoryHistoryStore struct {
	mu      sync.RWMutex
	history map[string][]ChatMessage
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{history: make(map[string][]ChatMessage)}
}

func (s *MemoryHistoryStore) Save(_ context.Context, conversationID string, history []ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[conversationID] = append([]ChatMessage{}, history...)
	return nil
}

func (s *MemoryHistoryStore) Load(_ context.Context, conversationID string) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.history[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHistoryNotFound, conversationID)
	}
	return append([]ChatMessage{}, history...), nil
}

func (s *MemoryHistoryStore) Exists(_ context.Context, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.history[conversationID]
	return ok, nil
}

// Delete drops a conversation, mimicking expiry in tests.
func (s *MemoryHistoryStore) Delete(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, conversationID)
}
