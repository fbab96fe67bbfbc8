package application

import (
	"context"
	"fmt"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/domain"
)

type ImportResult struct {
	Subscribed      int
	RecordsCreated  int
	RecordsMerged   int
	SessionsAdded   int
	SessionsSkipped int
}

// Import merges externally recovered state. Sessions already present with the
// same start are not duplicated, and an existing open session is kept.
func (e *Engine) Import(ctx context.Context, subscriptions []domain.EntityID, records []domain.PresenceRecord) (ImportResult, error) {
	var result ImportResult

	added, err := e.Registry.SubscribeAll(ctx, subscriptions)
	if err != nil {
		return ImportResult{}, err
	}
	result.Subscribed = added

	err = e.Sessions.Update(ctx, func(current map[domain.EntityID]*domain.PresenceRecord) error {
		for _, incoming := range records {
			id := incoming.EntityID.Normalize()
			if id == "" {
				continue
			}

			existing, ok := current[id]
			if !ok {
				clone := incoming.Clone()
				clone.EntityID = id
				result.SessionsSkipped += clone.Normalize()
				current[id] = &clone
				result.RecordsCreated++
				result.SessionsAdded += len(clone.Sessions)
				continue
			}

			result.RecordsMerged++
			if existing.DisplayName == "" {
				existing.DisplayName = incoming.DisplayName
			}
			starts := make(map[int64]struct{}, len(existing.Sessions))
			for _, s := range existing.Sessions {
				starts[s.Start.UnixNano()] = struct{}{}
			}
			for _, s := range incoming.Sessions {
				if _, dup := starts[s.Start.UnixNano()]; dup {
					result.SessionsSkipped++
					continue
				}
				starts[s.Start.UnixNano()] = struct{}{}
				existing.Sessions = append(existing.Sessions, s)
				result.SessionsAdded++
			}
			if existing.Open == nil && incoming.Open != nil {
				open := *incoming.Open
				existing.Open = &open
			}
			dropped := existing.Normalize()
			result.SessionsAdded -= dropped
			result.SessionsSkipped += dropped
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("import records: %w", err)
	}

	e.logger.Info(ctx, "imported presence history",
		slog.F("subscribed", result.Subscribed),
		slog.F("records_created", result.RecordsCreated),
		slog.F("records_merged", result.RecordsMerged),
		slog.F("sessions_added", result.SessionsAdded),
		slog.F("sessions_skipped", result.SessionsSkipped),
	)
	return result, nil
}
