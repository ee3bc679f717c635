package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps one key per sender with no expiry. Durability follows the
// server's persistence settings (AOF with appendfsync always is recommended).
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("whatsapp-relay.internal.session")
	}
	return &RedisStore{redis: client, tracer: tracer}
}

func (s *RedisStore) Lookup(ctx context.Context, senderID string) (string, bool, error) {
	ctx, span := s.tracer.Start(ctx, "session.lookup", trace.WithAttributes(attribute.String("sender_id", senderID)))
	defer span.End()

	contextID, err := s.redis.Get(ctx, sessionKey(senderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		span.RecordError(err)
		return "", false, fmt.Errorf("session: lookup %s: %w", senderID, err)
	}
	return contextID, true, nil
}

func (s *RedisStore) Store(ctx context.Context, senderID, contextID string) error {
	if err := validateKeys(senderID, contextID); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "session.store", trace.WithAttributes(attribute.String("sender_id", senderID)))
	defer span.End()

	if err := s.redis.Set(ctx, sessionKey(senderID), contextID, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: store %s: %w", senderID, err)
	}
	return nil
}

func sessionKey(senderID string) string {
	return fmt.Sprintf("session:%s", senderID)
}
