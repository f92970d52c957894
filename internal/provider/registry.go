package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"relaybot/internal/config"
	"relaybot/internal/domain"
)

// Registry resolves "provider/modelId" references to completion clients.
// Clients are created lazily from config and cached per provider name.
type Registry struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client
	cache      map[string]domain.CompletionClient
	mu         sync.RWMutex
}

func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:        cfg,
		logger:     logger,
		httpClient: SharedHTTPClient(defaultHTTPTimeout),
		cache:      make(map[string]domain.CompletionClient),
	}
}

// Resolve parses a "provider/modelId" reference and returns a handle carrying
// the client, model ID, and API key for that provider.
func (r *Registry) Resolve(ref string) (*domain.ModelHandle, error) {
	providerName, modelID, ok := strings.Cut(ref, "/")
	if !ok || providerName == "" || modelID == "" {
		return nil, fmt.Errorf("invalid model reference %q: want provider/modelId", ref)
	}

	pc, found := r.cfg.Providers[providerName]
	if !found {
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", providerName)
	}

	client, err := r.clientFor(providerName, pc)
	if err != nil {
		return nil, err
	}

	return &domain.ModelHandle{
		Provider: providerName,
		ModelID:  modelID,
		APIKey:   pc.APIKey,
		Client:   client,
	}, nil
}

// clientFor returns the cached client for a provider, creating it on first
// use. Uses double-check locking to avoid TOCTOU races.
func (r *Registry) clientFor(name string, pc config.ProviderConfig) (domain.CompletionClient, error) {
	r.mu.RLock()
	if cached, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under write lock (another goroutine may have created it).
	if cached, ok := r.cache[name]; ok {
		return cached, nil
	}

	var client domain.CompletionClient
	switch name {
	case "anthropic":
		client = NewAnthropic(AnthropicConfig{
			APIBase: pc.APIBase,
			APIKey:  pc.APIKey,
			Client:  r.httpClient,
			Logger:  r.logger,
		})
	default:
		// Anything else speaks the OpenAI chat completions dialect.
		if pc.APIBase == "" && name != "openai" {
			return nil, fmt.Errorf("provider %s: no API base configured", name)
		}
		client = NewOpenAI(OpenAIConfig{
			Name:    name,
			APIBase: pc.APIBase,
			APIKey:  pc.APIKey,
			Client:  r.httpClient,
			Logger:  r.logger,
		})
	}

	r.cache[name] = client
	return client, nil
}
