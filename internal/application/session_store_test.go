package application

import (
	"fmt"
	"testing"
	"time"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestSessionStoreLoadDropsInvalidSessions(t *testing.T) {
	t.Parallel()

	repo := &memSessionRepo{records: []domain.PresenceRecord{
		{
			EntityID: "1",
			Sessions: []domain.Session{
				closedSession(baseTime, 10),
				{Start: baseTime, End: baseTime.Add(-time.Minute), DurationMinutes: 3},
			},
		},
	}}
	store := NewSessionStore(repo, testLogger(t), nil)

	require.NoError(t, store.Load(testContext(t)))

	record, err := store.Get("1")
	require.NoError(t, err)
	require.Len(t, record.Sessions, 1)
	assert.Equal(t, float64(10), record.Sessions[0].DurationMinutes)
}

func TestSessionStoreLoadCorruptStartsEmpty(t *testing.T) {
	t.Parallel()

	repo := &memSessionRepo{loadErr: fmt.Errorf("%w: truncated", domain.ErrCorruptState)}
	store := NewSessionStore(repo, testLogger(t), nil)

	require.NoError(t, store.Load(testContext(t)))
	assert.Empty(t, store.All())
}

func TestSessionStoreUpdateFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	repo := &memSessionRepo{records: []domain.PresenceRecord{{EntityID: "1", DisplayName: "alice"}}}
	store := NewSessionStore(repo, testLogger(t), nil)
	require.NoError(t, store.Load(ctx))

	repo.saveErr = errSaveFailed
	err := store.Update(ctx, func(records map[domain.EntityID]*domain.PresenceRecord) error {
		records["1"].DisplayName = "mallory"
		records["2"] = domain.NewPresenceRecord("2", "bob")
		return nil
	})
	require.ErrorIs(t, err, errSaveFailed)

	record, err := store.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "alice", record.DisplayName)
	_, err = store.Get("2")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	repo := &memSessionRepo{records: []domain.PresenceRecord{{
		EntityID: "1",
		Sessions: []domain.Session{closedSession(baseTime, 5)},
	}}}
	store := NewSessionStore(repo, testLogger(t), nil)
	require.NoError(t, store.Load(ctx))

	record, err := store.Get("1")
	require.NoError(t, err)
	record.Sessions[0].DurationMinutes = 999

	again, err := store.Get("1")
	require.NoError(t, err)
	assert.Equal(t, float64(5), again.Sessions[0].DurationMinutes)
}

func TestSessionStoreFlushWritesCurrentState(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	repo := &memSessionRepo{records: []domain.PresenceRecord{{EntityID: "b"}, {EntityID: "a"}}}
	store := NewSessionStore(repo, testLogger(t), nil)
	require.NoError(t, store.Load(ctx))

	require.NoError(t, store.Flush(ctx))
	assert.Equal(t, 1, repo.saveCount())
	require.Len(t, repo.records, 2)
	assert.Equal(t, domain.EntityID("a"), repo.records[0].EntityID)
	assert.Equal(t, []domain.EntityID{"a", "b"}, store.IDs())
}
