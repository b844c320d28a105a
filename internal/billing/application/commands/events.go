package commands

import (
	"context"
	"time"

	sharedApplication "github.com/felixgeelhaar/carepay/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/carepay/internal/shared/domain"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/outbox"
)

// Clock returns the current time. Handlers take one so tests can pin "now".
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// recordEvents moves the pending events of each aggregate into the outbox
// inside the unit of work carried by ctx.
func recordEvents(ctx context.Context, repo outbox.Repository, principalID string, aggregates ...sharedDomain.AggregateRoot) error {
	var events []sharedDomain.DomainEvent
	for _, agg := range aggregates {
		events = append(events, agg.DomainEvents()...)
	}
	if len(events) == 0 {
		return nil
	}

	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, principalID))
	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return err
	}
	if err := repo.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	for _, agg := range aggregates {
		agg.ClearDomainEvents()
	}
	return nil
}
