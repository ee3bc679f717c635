package bootstrap

import (
	"context"

	appconfig "github.com/wolfman30/whatsapp-ai-relay/internal/config"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/internal/orchestrator"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// Relay bundles the orchestrator with the resources it holds open.
type Relay struct {
	Orchestrator *orchestrator.Orchestrator
	close        []func()
}

// Close releases every backend opened by BuildRelay.
func (r *Relay) Close() {
	for i := len(r.close) - 1; i >= 0; i-- {
		r.close[i]()
	}
}

// BuildRelay wires session store, conversation client and primer into an
// orchestrator.
func BuildRelay(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, m *metrics.RelayMetrics, logger *logging.Logger) (*Relay, error) {
	if logger == nil {
		logger = logging.Default()
	}

	primer, err := LoadPrimer(cfg.SystemPrimerFile)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := BuildSessionStore(ctx, cfg, loadAWS, logger)
	if err != nil {
		return nil, err
	}
	client, closeClient, err := BuildConversationClient(ctx, cfg, loadAWS, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	return &Relay{
		Orchestrator: orchestrator.New(store, client,
			orchestrator.WithPrimer(primer),
			orchestrator.WithLogger(logger),
			orchestrator.WithMetrics(m),
			orchestrator.WithTimeout(cfg.ReplyTimeout()),
		),
		close: []func(){closeStore, closeClient},
	}, nil
}
