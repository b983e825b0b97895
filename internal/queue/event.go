// Package queue defines message payloads exchanged over the message broker.
package queue

// QueueName is the durable queue carrying reservation lifecycle events.
const QueueName = "reservation.events"

// Event types.
const (
	EventConfirmed = "reservation.confirmed"
	EventCancelled = "reservation.cancelled"
)

// ReservationEvent is published after a reservation commits or is
// cancelled.  It carries enough for downstream consumers to log or notify
// without querying the primary database.
type ReservationEvent struct {
	Type          string   `json:"type"`
	ReservationID uint64   `json:"reservation_id"`
	RestaurantID  uint64   `json:"restaurant_id,omitempty"`
	Capacity      uint32   `json:"capacity,omitempty"`
	DinerIDs      []uint64 `json:"diner_ids,omitempty"`
	ActorID       uint64   `json:"actor_id"`
	Datetime      string   `json:"datetime,omitempty"`
	OccurredAt    string   `json:"occurred_at"`
}
