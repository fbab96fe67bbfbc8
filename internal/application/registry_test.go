package application

import (
	"fmt"
	"testing"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySubscribePersistsBeforeReturning(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	repo := &memSubscriptionRepo{}
	registry := NewRegistry(repo, testLogger(t))

	result, err := registry.Subscribe(ctx, " 42 ")
	require.NoError(t, err)
	assert.Equal(t, SubscribeAdded, result)
	assert.Equal(t, []domain.EntityID{"42"}, repo.ids)
	assert.True(t, registry.IsSubscribed("42"))

	result, err = registry.Subscribe(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, SubscribeAlreadyPresent, result)
	assert.Equal(t, 1, repo.saves)
}

func TestRegistrySubscribeSaveFailureKeepsSetUnchanged(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	repo := &memSubscriptionRepo{saveErr: errSaveFailed}
	registry := NewRegistry(repo, testLogger(t))

	_, err := registry.Subscribe(ctx, "42")
	require.ErrorIs(t, err, errSaveFailed)
	assert.False(t, registry.IsSubscribed("42"))
	assert.Empty(t, registry.List())
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(&memSubscriptionRepo{}, testLogger(t))

	_, err := registry.Subscribe(testContext(t), "  ")
	require.ErrorIs(t, err, ErrEmptyEntityID)
}

func TestRegistryUnsubscribe(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	repo := &memSubscriptionRepo{ids: []domain.EntityID{"1", "2"}}
	registry := NewRegistry(repo, testLogger(t))
	require.NoError(t, registry.Load(ctx))

	removed, err := registry.Unsubscribe(ctx, "1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []domain.EntityID{"2"}, registry.List())
	assert.Equal(t, []domain.EntityID{"2"}, repo.ids)

	removed, err = registry.Unsubscribe(ctx, "1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRegistryLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		repo    *memSubscriptionRepo
		want    []domain.EntityID
		wantErr bool
	}{
		{
			name: "persisted ids are sorted",
			repo: &memSubscriptionRepo{ids: []domain.EntityID{"b", "a"}},
			want: []domain.EntityID{"a", "b"},
		},
		{
			name: "malformed file starts empty",
			repo: &memSubscriptionRepo{loadErr: fmt.Errorf("%w: bad toml", domain.ErrCorruptState)},
			want: []domain.EntityID{},
		},
		{
			name:    "other load errors propagate",
			repo:    &memSubscriptionRepo{loadErr: errSaveFailed},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			registry := NewRegistry(tt.repo, testLogger(t))
			err := registry.Load(testContext(t))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, registry.List())
		})
	}
}
