package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/directory/internal/events"
)

// EventLogHandler appends every consumed event to catalog_event_log.
type EventLogHandler struct {
	pool *pgxpool.Pool
}

// NewEventLogHandler constructs a handler backed by pool.
func NewEventLogHandler(pool *pgxpool.Pool) *EventLogHandler {
	return &EventLogHandler{pool: pool}
}

// Handle stores the event; redelivered records are ignored.
func (h *EventLogHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO catalog_event_log (event_type, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}

// Invalidator drops cached owned-id sets.
type Invalidator interface {
	Invalidate(ctx context.Context, ownerIDs ...int64) error
}

// CacheInvalidationHandler evicts cached expansions of every owner that gained a descendant.
type CacheInvalidationHandler struct {
	cache Invalidator
}

// NewCacheInvalidationHandler constructs the handler.
func NewCacheInvalidationHandler(cache Invalidator) *CacheInvalidationHandler {
	return &CacheInvalidationHandler{cache: cache}
}

// Handle invalidates owners listed in activity.created events and ignores other types.
func (h *CacheInvalidationHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityCreated {
		return nil
	}
	var event events.ActivityCreated
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	return h.cache.Invalidate(ctx, event.OwnerIDs...)
}
