package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLRepository implements Repository over PostgreSQL or SQLite.
// Timestamps are stored as epoch milliseconds so both drivers share one schema.
type SQLRepository struct {
	conn database.Connection
}

// NewSQLRepository creates an outbox repository for the given connection.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn}
}

const messageColumns = `id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	payload, metadata, created_at, published_at, next_retry_at, retry_count,
	last_error, dead_lettered_at, dead_letter_reason`

func (r *SQLRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// Save stores a new outbox message.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	return r.insert(ctx, exec, msg)
}

// SaveBatch stores multiple outbox messages atomically. Inside a unit of work
// the caller's transaction is used; otherwise a local one is opened.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if tx := database.TxFromContext(ctx); tx != nil {
		for _, msg := range msgs {
			if err := r.insert(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, msg := range msgs {
		if err := r.insert(ctx, tx, msg); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *SQLRepository) insert(ctx context.Context, exec database.Executor, msg *Message) error {
	query := r.q(`
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		RETURNING id`)

	return exec.QueryRow(ctx, query,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		string(msg.Metadata),
		msg.CreatedAt.UnixMilli(),
	).Scan(&msg.ID)
}

// GetUnpublished retrieves unpublished messages ordered by creation time.
func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := r.q(`
		SELECT ` + messageColumns + `
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`)

	rows, err := r.conn.Query(ctx, query, time.Now().UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkPublished marks a message as successfully published.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx,
		r.q(`UPDATE outbox SET published_at = ?, dead_lettered_at = NULL WHERE id = ?`),
		time.Now().UnixMilli(), id)
	return err
}

// MarkFailed records a publish failure with error message.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.conn.Exec(ctx, r.q(`
		UPDATE outbox
		SET retry_count = retry_count + 1,
			last_error = ?,
			next_retry_at = ?
		WHERE id = ?`),
		errMsg, nextRetryAt.UnixMilli(), id)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.conn.Exec(ctx, r.q(`
		UPDATE outbox
		SET dead_lettered_at = ?,
			dead_letter_reason = ?
		WHERE id = ?`),
		time.Now().UnixMilli(), reason, id)
	return err
}

// GetFailed retrieves failed messages eligible for retry.
func (r *SQLRepository) GetFailed(ctx context.Context, maxRetries, limit int) ([]*Message, error) {
	query := r.q(`
		SELECT ` + messageColumns + `
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND retry_count > 0
		  AND retry_count < ?
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`)

	rows, err := r.conn.Query(ctx, query, maxRetries, time.Now().UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListByAggregate returns the event history of one aggregate.
func (r *SQLRepository) ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*Message, error) {
	query := r.q(`
		SELECT ` + messageColumns + `
		FROM outbox
		WHERE aggregate_type = ? AND aggregate_id = ?
		ORDER BY created_at, id`)

	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// DeleteOld removes successfully published messages older than the retention period.
func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour).UnixMilli()
	result, err := r.conn.Exec(ctx,
		r.q(`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`),
		cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMessages(rows database.Rows) ([]*Message, error) {
	var messages []*Message

	for rows.Next() {
		var (
			msg                                      Message
			eventID                                  string
			payload, metadata                        string
			createdAt                                int64
			publishedAt, nextRetryAt, deadLetteredAt sql.NullInt64
			lastError, deadLetterReason              sql.NullString
		)
		err := rows.Scan(
			&msg.ID,
			&eventID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.RoutingKey,
			&payload,
			&metadata,
			&createdAt,
			&publishedAt,
			&nextRetryAt,
			&msg.RetryCount,
			&lastError,
			&deadLetteredAt,
			&deadLetterReason,
		)
		if err != nil {
			return nil, err
		}

		msg.EventID, _ = uuid.Parse(eventID)
		msg.Payload = []byte(payload)
		msg.Metadata = []byte(metadata)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		msg.PublishedAt = millisPtr(publishedAt)
		msg.NextRetryAt = millisPtr(nextRetryAt)
		msg.DeadLetteredAt = millisPtr(deadLetteredAt)
		if lastError.Valid {
			msg.LastError = &lastError.String
		}
		if deadLetterReason.Valid {
			msg.DeadLetterReason = &deadLetterReason.String
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
