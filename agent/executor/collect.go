package executor

import (
	"context"
	"strings"

	"go_cfgsync/agent/provider"
	"go_cfgsync/agent/store"
)

// Collector reads the local provider state of every app type
type Collector struct {
	providers *store.ProviderStore
}

// NewCollector creates a Collector
func NewCollector(providers *store.ProviderStore) *Collector {
	return &Collector{providers: providers}
}

// Collect builds a snapshot with one entry per app type that has providers
func (c *Collector) Collect(ctx context.Context) (*provider.DeviceSnapshot, error) {
	snapshot := &provider.DeviceSnapshot{}
	for _, app := range provider.AppTypes() {
		list, err := c.providers.List(ctx, app)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			continue
		}

		current, err := c.providers.Current(ctx, app)
		if err != nil {
			return nil, err
		}

		appSnapshot := &provider.AppSnapshot{Providers: provider.NewProviders(list...)}
		if strings.TrimSpace(current) != "" {
			appSnapshot.CurrentID = &current
		}
		snapshot.Set(app, appSnapshot)
	}
	return snapshot, nil
}
