package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
)

var ErrEmptyEntityID = errors.New("entity id is required")

type SubscribeResult string

const (
	SubscribeAdded          SubscribeResult = "added"
	SubscribeAlreadyPresent SubscribeResult = "already_present"
)

// Registry is the durable set of entities opted into tracking.
type Registry struct {
	repo   ports.SubscriptionRepository
	logger slog.Logger

	mu  sync.RWMutex
	set domain.SubscriptionSet
}

func NewRegistry(repo ports.SubscriptionRepository, logger slog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger, set: domain.NewSubscriptionSet()}
}

// Load replaces the in-memory set with the persisted one. A malformed file
// is logged and treated as empty.
func (r *Registry) Load(ctx context.Context) error {
	ids, err := r.repo.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptState) {
			return fmt.Errorf("load subscriptions: %w", err)
		}
		r.logger.Error(ctx, "subscription registry is malformed, starting with no subscriptions", slog.Error(err))
		ids = nil
	}

	r.mu.Lock()
	r.set = domain.NewSubscriptionSet(ids...)
	r.mu.Unlock()

	r.logger.Debug(ctx, "loaded subscriptions", slog.F("count", len(ids)))
	return nil
}

// Subscribe adds id and persists the set before returning. Subscribing an
// already present id is a no-op.
func (r *Registry) Subscribe(ctx context.Context, id domain.EntityID) (SubscribeResult, error) {
	id = id.Normalize()
	if id == "" {
		return "", ErrEmptyEntityID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.set.Has(id) {
		return SubscribeAlreadyPresent, nil
	}

	next := r.set.Clone()
	next.Add(id)
	if err := r.repo.Save(ctx, next.Sorted()); err != nil {
		return "", fmt.Errorf("save subscriptions: %w", err)
	}
	r.set = next

	r.logger.Info(ctx, "entity subscribed", slog.F("entity_id", id))
	return SubscribeAdded, nil
}

// Unsubscribe stops tracking id. Its history stays in the session store.
func (r *Registry) Unsubscribe(ctx context.Context, id domain.EntityID) (bool, error) {
	id = id.Normalize()
	if id == "" {
		return false, ErrEmptyEntityID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.set.Has(id) {
		return false, nil
	}

	next := r.set.Clone()
	next.Remove(id)
	if err := r.repo.Save(ctx, next.Sorted()); err != nil {
		return false, fmt.Errorf("save subscriptions: %w", err)
	}
	r.set = next

	r.logger.Info(ctx, "entity unsubscribed", slog.F("entity_id", id))
	return true, nil
}

func (r *Registry) IsSubscribed(id domain.EntityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.set.Has(id)
}

func (r *Registry) List() []domain.EntityID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.set.Sorted()
}

func (r *Registry) snapshot() domain.SubscriptionSet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.set.Clone()
}

// SubscribeAll adds every id with a single write and returns how many were new.
func (r *Registry) SubscribeAll(ctx context.Context, ids []domain.EntityID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.set.Clone()
	added := 0
	for _, id := range ids {
		if id = id.Normalize(); id != "" && next.Add(id) {
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}
	if err := r.repo.Save(ctx, next.Sorted()); err != nil {
		return 0, fmt.Errorf("save subscriptions: %w", err)
	}
	r.set = next
	return added, nil
}
