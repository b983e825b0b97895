package model

import (
	"slices"
	"time"
)

// TablesByRestaurant maps a restaurant id to candidate table ids ordered by
// ascending table capacity.
type TablesByRestaurant map[uint64][]uint64

// RestaurantIDs returns the keys in ascending order.
func (t TablesByRestaurant) RestaurantIDs() []uint64 {
	ids := make([]uint64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Availability is the advisory result of a search, replayed into a
// reservation attempt. It is never persisted and may be stale by the time
// it is used.
type Availability struct {
	Diners   uint32             `json:"diners"`
	DinerIDs []uint64           `json:"diner_ids"`
	Datetime time.Time          `json:"datetime"`
	Tables   TablesByRestaurant `json:"tables"`
}
