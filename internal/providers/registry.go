package providers

import (
	"fmt"
	"sort"

	"github.com/vrsandeep/anime-sync/internal/models"
)

var registry = make(map[string]Provider)

// Register adds a new provider to the registry. It's called at startup.
func Register(p Provider) {
	info := p.GetInfo()
	if _, exists := registry[info.ID]; exists {
		panic(fmt.Sprintf("provider with ID '%s' is already registered", info.ID))
	}
	registry[info.ID] = p
}

// Get returns a provider by its ID.
func Get(id string) (Provider, bool) {
	p, ok := registry[id]
	return p, ok
}

// GetAll returns information for all registered providers, sorted by ID.
func GetAll() []models.ProviderInfo {
	providers := make([]models.ProviderInfo, 0, len(registry))
	for _, p := range registry {
		providers = append(providers, p.GetInfo())
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID < providers[j].ID })
	return providers
}

// UnregisterAll removes all providers from the registry.
func UnregisterAll() {
	registry = make(map[string]Provider)
}
