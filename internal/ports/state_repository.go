package ports

import (
	"context"

	"github.com/bnema/presence-tracker/internal/domain"
)

// SubscriptionRepository persists the subscription registry as one document.
type SubscriptionRepository interface {
	Load(ctx context.Context) ([]domain.EntityID, error)
	Save(ctx context.Context, ids []domain.EntityID) error
}

// SessionRepository persists every presence record as one document, so a
// tick is written in a single replace.
type SessionRepository interface {
	Load(ctx context.Context) ([]domain.PresenceRecord, error)
	Save(ctx context.Context, records []domain.PresenceRecord) error
}

type ScheduleRepository interface {
	Load(ctx context.Context) (domain.ReportSchedule, error)
	Save(ctx context.Context, schedule domain.ReportSchedule) error
}
