package ports

import (
	"context"

	"github.com/bnema/presence-tracker/internal/domain"
)

type Deliverer interface {
	Deliver(ctx context.Context, dest domain.Destination, payload domain.Payload) error
}

type Renderer interface {
	Render(ctx context.Context, series domain.Series) (domain.Payload, error)
}
