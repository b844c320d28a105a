package outbox

import (
	"context"
	"time"
)

// Repository defines the interface for outbox persistence.
// Save and SaveBatch join the unit of work carried by ctx so events commit
// together with the state change that raised them.
type Repository interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished returns messages due for publishing, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error

	// GetFailed retrieves failed messages eligible for retry.
	GetFailed(ctx context.Context, maxRetries, limit int) ([]*Message, error)

	// ListByAggregate returns every message recorded for one aggregate, oldest first.
	ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*Message, error)

	// DeleteOld removes published messages older than the retention period.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}
