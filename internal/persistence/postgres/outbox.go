package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/directory/internal/domain"
	"example.com/directory/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.NodeCreation) string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityCreated: {
		Topic:         events.TopicActivities,
		SchemaSubject: events.TopicActivities + "-value",
		// keyed by the most distant recorded ancestor so one subtree stays on one partition
		PartitionKeyFn: func(c domain.NodeCreation) string {
			root := c.Activity.ID
			depth := 1
			for _, edge := range c.Edges {
				if edge.Depth > depth {
					root, depth = edge.OwnerID, edge.Depth
				}
			}
			return strconv.FormatInt(root, 10)
		},
	},
}

func insertActivityCreated(ctx context.Context, tx pgx.Tx, c *domain.NodeCreation) error {
	payload := events.ActivityCreated{
		ActivityID: c.Activity.ID,
		Name:       c.Activity.Name,
		ParentID:   c.ParentID,
		OwnerIDs:   c.OwnerIDs(),
		Truncated:  c.Truncated,
		CreatedAt:  time.Now().UTC(),
	}
	return insertOutbox(ctx, tx, *c, events.TypeActivityCreated, payload)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, c domain.NodeCreation, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	aggregateID := strconv.FormatInt(c.Activity.ID, 10)
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(c),
		body,
		dedupeKey,
	)
	return err
}
