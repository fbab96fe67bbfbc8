package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/observability"
	"github.com/bnema/presence-tracker/internal/ports"
)

// SessionStore holds every presence record in memory and writes the whole set
// through its repository. All mutations go through Update, which persists
// before the new state becomes visible to readers.
type SessionStore struct {
	repo    ports.SessionRepository
	logger  slog.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	records map[domain.EntityID]domain.PresenceRecord
}

func NewSessionStore(repo ports.SessionRepository, logger slog.Logger, metrics *observability.Metrics) *SessionStore {
	return &SessionStore{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		records: map[domain.EntityID]domain.PresenceRecord{},
	}
}

func (s *SessionStore) Load(ctx context.Context) error {
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptState) {
			return fmt.Errorf("load sessions: %w", err)
		}
		s.logger.Error(ctx, "session store is malformed, starting with empty history", slog.Error(err))
		loaded = nil
	}

	records := make(map[domain.EntityID]domain.PresenceRecord, len(loaded))
	for _, record := range loaded {
		id := record.EntityID.Normalize()
		if id == "" {
			continue
		}
		record.EntityID = id
		if dropped := record.Normalize(); dropped > 0 {
			s.logger.Warn(ctx, "dropped invalid sessions from persisted record",
				slog.F("entity_id", id),
				slog.F("dropped", dropped),
			)
		}
		records[id] = record
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.updateGauges(records)
	s.logger.Debug(ctx, "loaded presence records", slog.F("count", len(records)))
	return nil
}

// Update runs fn against a private copy of every record, persists the result
// and only then publishes it. Readers see either the old or the new state.
func (s *SessionStore) Update(ctx context.Context, fn func(records map[domain.EntityID]*domain.PresenceRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := make(map[domain.EntityID]*domain.PresenceRecord, len(s.records))
	for id, record := range s.records {
		clone := record.Clone()
		working[id] = &clone
	}

	if err := fn(working); err != nil {
		return err
	}

	next := make(map[domain.EntityID]domain.PresenceRecord, len(working))
	for id, record := range working {
		next[id] = *record
	}

	if err := s.repo.Save(ctx, sortedRecords(next)); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	s.records = next

	s.updateGauges(next)
	return nil
}

// Flush rewrites the current state without changing it.
func (s *SessionStore) Flush(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.repo.Save(ctx, sortedRecords(s.records)); err != nil {
		return fmt.Errorf("flush sessions: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(id domain.EntityID) (domain.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id.Normalize()]
	if !ok {
		return domain.PresenceRecord{}, domain.ErrRecordNotFound
	}
	return record.Clone(), nil
}

// All returns copies of every record ordered by entity id.
func (s *SessionStore) All() []domain.PresenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedRecords(s.records)
}

func (s *SessionStore) IDs() []domain.EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.EntityID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *SessionStore) updateGauges(records map[domain.EntityID]domain.PresenceRecord) {
	open := 0
	for _, record := range records {
		if record.Open != nil {
			open++
		}
	}
	s.metrics.SetStoreSize(len(records), open)
}

func sortedRecords(records map[domain.EntityID]domain.PresenceRecord) []domain.PresenceRecord {
	out := make([]domain.PresenceRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}
