package persistence

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ProviderConfig selects and configures a persistence backend.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// PluginConfig provides initialization parameters to persistence plugins.
type PluginConfig struct {
	// Config contains plugin-specific configuration.
	Config json.RawMessage
}

// PluginFactory creates persistence backends from configuration.
type PluginFactory func(config PluginConfig) (Store, error)

var (
	registry = make(map[string]PluginFactory)
	mu       sync.RWMutex
)

// RegisterProvider registers a factory for a provider type. Providers
// self-register from their package init.
func RegisterProvider(providerType string, factory PluginFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[providerType] = factory
}

// Open creates a persistence backend from provider configuration.
func Open(providerConfig ProviderConfig, pluginConfig PluginConfig) (Store, error) {
	mu.RLock()
	factory, ok := registry[providerConfig.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown persistence provider type: %s", providerConfig.Type)
	}

	pluginConfig.Config = providerConfig.Config
	return factory(pluginConfig)
}

// ListProviders returns registered provider types.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	return providers
}
