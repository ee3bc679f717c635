package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/whatsapp-ai-relay/internal/config"
	"github.com/wolfman30/whatsapp-ai-relay/internal/session"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// BuildSessionStore opens the session backend named by cfg.SessionStore. The
// returned close func releases the backend's connections.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (session.Store, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.SessionStore {
	case "memory":
		logger.Warn("using in-memory session store; sender mappings will not survive restarts")
		return session.NewMemoryStore(), noop, nil

	case "sqlite":
		store, err := session.OpenSQLite(ctx, cfg.SessionDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: open sqlite session store: %w", err)
		}
		logger.Info("using sqlite session store", "path", cfg.SessionDBPath)
		return store, func() { _ = store.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		logger.Info("using postgres session store")
		return session.NewPostgresStore(pool), pool.Close, nil

	case "redis":
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, nil, fmt.Errorf("bootstrap: redis unavailable at %s", cfg.RedisAddr)
		}
		logger.Info("using redis session store", "addr", cfg.RedisAddr)
		return session.NewRedisStore(client, nil), func() { _ = client.Close() }, nil

	case "dynamodb":
		if loadAWS == nil {
			return nil, nil, errors.New("bootstrap: aws config loader is required for dynamodb")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		logger.Info("using dynamodb session store", "table", cfg.SessionTable, "region", cfg.AWSRegion)
		return session.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionTable), noop, nil

	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown session store %q", cfg.SessionStore)
	}
}
