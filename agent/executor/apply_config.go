package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"go_cfgsync/agent/provider"
	"go_cfgsync/agent/store"
)

// ErrInvalidAdminConfig marks an admin config whose currentId is missing or unknown
var ErrInvalidAdminConfig = errors.New("invalid admin config")

// Applier replaces local providers with an admin-pushed snapshot
type Applier struct {
	providers *store.ProviderStore
	logger    *logrus.Entry
}

// NewApplier creates an Applier
func NewApplier(providers *store.ProviderStore, logger *logrus.Entry) *Applier {
	return &Applier{providers: providers, logger: logger.WithField("component", "applier")}
}

// Apply processes present app types in order. Each app type is validated and then
// replaced inside one transaction. The first failure stops the run; app types already
// replaced stay replaced.
func (a *Applier) Apply(ctx context.Context, snapshot *provider.DeviceSnapshot) error {
	if snapshot == nil {
		return nil
	}

	for _, app := range provider.AppTypes() {
		appSnapshot := snapshot.Get(app)
		if appSnapshot == nil {
			continue
		}
		if err := a.applyApp(ctx, app, appSnapshot); err != nil {
			return err
		}
		a.logger.WithFields(logrus.Fields{
			"app":       app,
			"providers": appSnapshot.Providers.Len(),
			"current":   *appSnapshot.CurrentID,
		}).Info("admin config applied")
	}
	return nil
}

func (a *Applier) applyApp(ctx context.Context, app provider.AppType, s *provider.AppSnapshot) error {
	if s.CurrentID == nil || *s.CurrentID == "" {
		return fmt.Errorf("%w: %s has no current provider", ErrInvalidAdminConfig, app)
	}
	currentID := *s.CurrentID
	if s.Providers == nil {
		return fmt.Errorf("%w: %s has no providers", ErrInvalidAdminConfig, app)
	}
	if _, ok := s.Providers.Get(currentID); !ok {
		return fmt.Errorf("%w: %s current provider %q not found", ErrInvalidAdminConfig, app, currentID)
	}

	return a.providers.Transaction(ctx, func(tx *store.ProviderStore) error {
		if err := tx.DeleteAll(ctx, app); err != nil {
			return err
		}
		for _, p := range s.List() {
			if err := tx.Add(ctx, app, p); err != nil {
				return err
			}
		}
		return tx.SwitchActive(ctx, app, currentID)
	})
}
