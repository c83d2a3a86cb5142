// Package events defines the payloads the directory publishes through its outbox.
package events

import "time"

// Event types.
const (
	TypeActivityCreated = "activity.created"
)

// Topic carrying hierarchy changes.
const TopicActivities = "directory.activities"

// ActivityCreated is emitted once the activity and its ownership rows are committed.
type ActivityCreated struct {
	ActivityID int64     `json:"activity_id"`
	Name       string    `json:"name"`
	ParentID   *int64    `json:"parent_id,omitempty"`
	OwnerIDs   []int64   `json:"owner_ids"`
	Truncated  int       `json:"truncated_links"`
	CreatedAt  time.Time `json:"created_at"`
}

// Topics lists every topic the outbox may publish to.
var Topics = []string{TopicActivities}

// KnownTopic reports whether topic is part of the catalog.
func KnownTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}
