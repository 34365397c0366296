package root

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/marketflow/marketflow/pkg/collectors"
	"github.com/marketflow/marketflow/pkg/collectors/government"
	"github.com/marketflow/marketflow/pkg/collectors/mcp"
	"github.com/marketflow/marketflow/pkg/collectors/rest"
	"github.com/marketflow/marketflow/pkg/config"
	"github.com/marketflow/marketflow/pkg/domain"
	natspub "github.com/marketflow/marketflow/pkg/integrations/nats"
	"github.com/marketflow/marketflow/pkg/logging"
	"github.com/marketflow/marketflow/pkg/ratelimit"
)

// fleet is the assembled runtime: every configured collector registered on
// one router, sharing one budget registry.
type fleet struct {
	cfg    *config.Config
	logger *zap.Logger
	router *collectors.Router
}

// buildFleet loads configuration and constructs the router plus one collector
// per configured entry. Budgets are created first so the collector and the
// router observe the same admission state.
func buildFleet(path string) (*fleet, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, err
	}

	budgets := ratelimit.NewRegistry()
	router, err := collectors.NewRouter(logger.Named("router"), budgets)
	if err != nil {
		return nil, err
	}

	for _, cc := range cfg.Collectors {
		capability, err := cc.Capability()
		if err != nil {
			return nil, err
		}
		spec, err := cc.BudgetSpec(cfg.Defaults)
		if err != nil {
			return nil, err
		}
		budget := budgets.Budget(capability.ID, spec)

		collector, err := buildCollector(cc, capability, budget, logger)
		if err != nil {
			return nil, fmt.Errorf("collector %s: %w", cc.ID, err)
		}
		if err := router.RegisterWithBudget(collector, capability, spec); err != nil {
			return nil, err
		}
	}

	return &fleet{cfg: cfg, logger: logger, router: router}, nil
}

// buildCollector picks the implementation by quadrant.
func buildCollector(cc config.CollectorConfig, capability domain.CollectorCapability, budget *ratelimit.Budget, logger *zap.Logger) (collectors.Collector, error) {
	switch capability.Quadrant {
	case domain.QuadrantGovernmentFree:
		return government.New(government.Config{
			Capability: capability,
			BaseURL:    cc.BaseURL,
			UserAgent:  cc.UserAgent,
			Budget:     budget,
			Logger:     logger.Named(cc.ID),
		})
	case domain.QuadrantCommercialMCP:
		return mcp.New(mcp.Config{
			Capability: capability,
			Endpoint:   cc.Endpoint,
			APIKey:     cc.APIKey,
			Budget:     budget,
			Logger:     logger.Named(cc.ID),
		})
	case domain.QuadrantCommercialAPI:
		return rest.New(rest.Config{
			Capability: capability,
			BaseURL:    cc.BaseURL,
			APIKey:     cc.APIKey,
			Budget:     budget,
			Logger:     logger.Named(cc.ID),
		})
	default:
		return nil, fmt.Errorf("no implementation for quadrant %s", capability.Quadrant)
	}
}

// publisher builds the NATS result publisher when enabled, nil otherwise.
func (f *fleet) publisher() (*natspub.ResultPublisher, error) {
	if !f.cfg.NATS.Enabled {
		return nil, nil
	}
	return natspub.NewResultPublisher(natspub.Config{
		URL:           f.cfg.NATS.URL,
		SubjectPrefix: f.cfg.NATS.SubjectPrefix,
	}, f.logger)
}

func (f *fleet) close() {
	_ = f.logger.Sync()
}
