package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants for published identity events.
const (
	EventTypePersonCreated = "person.created"
	EventTypePersonMatched = "person.matched"
	EventTypePersonMerged  = "person.merged"
	EventTypePersonLinked  = "person.linked"
)

// PersonResolvedPayload is the payload for person.created and person.matched
// events emitted after a resolution commits.
type PersonResolvedPayload struct {
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Created  bool      `json:"created"`
}

// PersonLinkedPayload is the payload for person.linked events.
type PersonLinkedPayload struct {
	PersonID  uuid.UUID `json:"person_id"`
	ContextID string    `json:"context_id"`
	Role      string    `json:"role,omitempty"`
}

// PersonMergedPayload is the payload for person.merged events emitted after a
// duplicate group merge commits.
type PersonMergedPayload struct {
	PrimaryID       uuid.UUID   `json:"primary_id"`
	DeletedIDs      []uuid.UUID `json:"deleted_ids"`
	ReassignedLinks int         `json:"reassigned_links"`
}

// Event is a published identity event. The payload is one of the typed
// payload structs above, JSON-serialized by the publisher.
type Event struct {
	EventID     uuid.UUID   `json:"event_id"`
	EventType   string      `json:"event_type"`
	AggregateID string      `json:"aggregate_id"`
	Payload     interface{} `json:"payload"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// NewEvent creates a new identity event for the given aggregate and payload.
func NewEvent(eventType, aggregateID string, payload interface{}) Event {
	return Event{
		EventID:     uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}
}
