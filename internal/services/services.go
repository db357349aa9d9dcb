package services

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/agent"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/metrics"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
	"github.com/tripgenie/tripgenie-backend/internal/providers/factory"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
	"github.com/tripgenie/tripgenie-backend/internal/tripcontext"
)

// Services holds all service instances
type Services struct {
	Chat     *ChatService
	Gateway  *tools.Gateway
	Metrics  *metrics.Collector
	Janitor  *Janitor
	Store    repository.Store
	Provider providers.Provider
}

// Options overrides pieces of the default wiring
type Options struct {
	// Provider replaces the configured completion provider
	Provider providers.Provider
	// Gateway replaces the default tool registry
	Gateway *tools.Gateway
}

// NewServices wires the store, tool gateway, completion provider and orchestrator
func NewServices(cfg *config.Config, store repository.Store, opts Options, logger *logrus.Logger) (*Services, error) {
	collector := metrics.New()

	gateway := opts.Gateway
	if gateway == nil {
		gateway = tools.NewDefaultGateway(cfg.Tools, collector, logger)
	}

	provider := opts.Provider
	if provider == nil {
		var err error
		provider, err = factory.CreateProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create completion provider: %w", err)
		}
	}
	logger.WithFields(logrus.Fields{
		"provider": provider.Name(),
		"model":    cfg.LLM.Model,
	}).Info("Completion provider ready")

	orchestrator := agent.NewOrchestrator(agent.Config{
		Decider:       agent.NewModelDecider(provider, collector, logger),
		Gateway:       gateway,
		Extractor:     tripcontext.NewExtractor(nil),
		MaxToolRounds: cfg.Tools.MaxToolRounds,
		Logger:        logger,
	})

	chat := NewChatService(ChatConfig{
		Store:        store,
		Orchestrator: orchestrator,
		Metrics:      collector,
		HistoryLimit: cfg.Store.HistoryLimit,
		Logger:       logger,
	})

	janitor := NewJanitor(JanitorConfig{
		Store:    store,
		TTL:      cfg.Store.SessionTTL,
		Interval: cfg.Store.CleanupInterval,
		Logger:   logger,
	})

	return &Services{
		Chat:     chat,
		Gateway:  gateway,
		Metrics:  collector,
		Janitor:  janitor,
		Store:    store,
		Provider: provider,
	}, nil
}

// Start launches background work
func (s *Services) Start(ctx context.Context) {
	s.Janitor.Start(ctx)
}

// Close stops background work and releases the store
func (s *Services) Close() error {
	s.Janitor.Stop()

	var result *multierror.Error
	if err := s.Store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close session store: %w", err))
	}
	return result.ErrorOrNil()
}
