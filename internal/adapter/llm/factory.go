package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "MEDEVAL_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// Provider names accepted by NewModel.
const (
	ProviderOpenAI = "openai"
	ProviderGenAI  = "genai"
	ProviderMock   = "mock"
)

// Settings selects the provider for NewModel.
type Settings struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewModel creates a model client for the configured provider.
// If MEDEVAL_MODE=MOCK, the mock client is returned regardless of provider.
func NewModel(ctx context.Context, s Settings, logger *zap.Logger) (Model, error) {
	if os.Getenv(EnvMode) == ModeMock {
		logger.Info("MEDEVAL_MODE=MOCK detected, using mock model client")
		return NewMockClient(), nil
	}

	switch s.Provider {
	case ProviderOpenAI, "":
		return NewClient(s.BaseURL, s.APIKey, s.Model, s.Timeout), nil
	case ProviderGenAI:
		return NewGenAIClient(ctx, s.APIKey, s.Model)
	case ProviderMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", s.Provider)
	}
}
