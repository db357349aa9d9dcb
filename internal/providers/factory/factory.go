package factory

import (
	"fmt"

	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
	"github.com/tripgenie/tripgenie-backend/internal/providers/anthropic"
	"github.com/tripgenie/tripgenie-backend/internal/providers/openai"
	"github.com/tripgenie/tripgenie-backend/internal/providers/stub"
)

// CreateProvider creates a provider instance based on configuration
func CreateProvider(cfg config.LLMConfig) (providers.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg)
	case "anthropic":
		return anthropic.NewProvider(cfg)
	case "stub":
		return stub.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}
