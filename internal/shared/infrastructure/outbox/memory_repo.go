package outbox

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository keeps messages in a slice for relay tests.
type InMemoryRepository struct {
	mu       sync.Mutex
	messages []*Message
	lastID   int64
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Save(ctx context.Context, msg *Message) error {
	return r.SaveBatch(ctx, []*Message{msg})
}

func (r *InMemoryRepository) SaveBatch(_ context.Context, msgs []*Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.lastID++
		msg.ID = r.lastID
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		r.messages = append(r.messages, msg)
	}
	return nil
}

func (r *InMemoryRepository) GetUnpublished(_ context.Context, limit int) ([]*Message, error) {
	now := time.Now()
	return r.collect(limit, func(m *Message) bool { return m.pending(now) }), nil
}

func (r *InMemoryRepository) GetFailed(_ context.Context, maxRetries, limit int) ([]*Message, error) {
	now := time.Now()
	return r.collect(limit, func(m *Message) bool {
		return m.pending(now) && m.RetryCount > 0 && m.RetryCount < maxRetries
	}), nil
}

func (r *InMemoryRepository) ListByAggregate(_ context.Context, aggregateType, aggregateID string) ([]*Message, error) {
	return r.collect(0, func(m *Message) bool {
		return m.AggregateType == aggregateType && m.AggregateID == aggregateID
	}), nil
}

func (r *InMemoryRepository) MarkPublished(_ context.Context, id int64) error {
	r.update(id, func(m *Message) {
		now := time.Now()
		m.PublishedAt = &now
		m.DeadLetteredAt = nil
	})
	return nil
}

func (r *InMemoryRepository) MarkFailed(_ context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	r.update(id, func(m *Message) {
		m.RetryCount++
		m.LastError = &errMsg
		m.NextRetryAt = &nextRetryAt
	})
	return nil
}

func (r *InMemoryRepository) MarkDead(_ context.Context, id int64, reason string) error {
	r.update(id, func(m *Message) {
		now := time.Now()
		m.DeadLetteredAt = &now
		m.DeadLetterReason = &reason
	})
	return nil
}

func (r *InMemoryRepository) DeleteOld(_ context.Context, olderThanDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	var deleted int64
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.PublishedAt != nil && m.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return deleted, nil
}

// All returns a snapshot of every stored message.
func (r *InMemoryRepository) All() []*Message {
	return r.collect(0, func(*Message) bool { return true })
}

// collect returns matching messages in insertion order; limit <= 0 means all.
func (r *InMemoryRepository) collect(limit int, match func(*Message) bool) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Message
	for _, m := range r.messages {
		if !match(m) {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (r *InMemoryRepository) update(id int64, fn func(*Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			fn(m)
			return
		}
	}
}
