package toml

import (
	"context"
	"sort"
	"sync"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/spf13/viper"
)

const (
	subscriptionsPathKey  = "state.subscriptions_path"
	subscriptionsFileName = "subscriptions.toml"
)

type SubscriptionRepository struct {
	path string
	mu   *sync.RWMutex
}

var _ ports.SubscriptionRepository = (*SubscriptionRepository)(nil)

func NewSubscriptionRepository(cfg *viper.Viper) (*SubscriptionRepository, error) {
	path, err := resolvePath(cfg, subscriptionsPathKey, subscriptionsFileName)
	if err != nil {
		return nil, err
	}

	return &SubscriptionRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *SubscriptionRepository) Path() string {
	return r.path
}

func (r *SubscriptionRepository) Load(ctx context.Context) ([]domain.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var file subscriptionsFileSchema
	if err := readTOMLFile(r.path, "subscriptions", &file); err != nil {
		return nil, err
	}

	ids := make([]domain.EntityID, 0, len(file.Entities))
	for _, raw := range file.Entities {
		ids = append(ids, domain.EntityID(raw))
	}

	return ids, nil
}

func (r *SubscriptionRepository) Save(ctx context.Context, ids []domain.EntityID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entities := make([]string, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, string(id))
	}
	sort.Strings(entities)

	return writeTOMLFile(r.path, "subscriptions", &subscriptionsFileSchema{Entities: entities})
}
