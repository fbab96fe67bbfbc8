package router

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
)

var _ ports.Deliverer = (*Deliverer)(nil)

// Deliverer dispatches on the destination scheme.
type Deliverer struct {
	byScheme map[string]ports.Deliverer
}

func New(routes map[string]ports.Deliverer) *Deliverer {
	byScheme := make(map[string]ports.Deliverer, len(routes))
	for scheme, deliverer := range routes {
		byScheme[strings.ToLower(scheme)] = deliverer
	}
	return &Deliverer{byScheme: byScheme}
}

func (d *Deliverer) Deliver(ctx context.Context, dest domain.Destination, payload domain.Payload) error {
	if err := dest.Validate(); err != nil {
		return err
	}
	parsed, err := url.Parse(strings.TrimSpace(string(dest)))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidDestination, err)
	}

	deliverer, ok := d.byScheme[strings.ToLower(parsed.Scheme)]
	if !ok {
		return fmt.Errorf("%w: no deliverer for scheme %q", domain.ErrInvalidDestination, parsed.Scheme)
	}
	return deliverer.Deliver(ctx, dest, payload)
}
