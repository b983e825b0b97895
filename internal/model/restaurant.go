package model

import "github.com/iliyamo/table-reservation/internal/restriction"

// Restaurant is a venue whose tables can be booked.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – display name.
//  Restrictions – every dietary restriction the kitchen can accommodate.
type Restaurant struct {
	ID           uint64           // restaurants.id
	Name         string           // restaurants.name
	Restrictions restriction.Mask // restaurants.restriction_mask
}

// Table is a bookable table owned by a restaurant. Capacity is at least 1.
type Table struct {
	ID           uint64 // tables.id
	RestaurantID uint64 // tables.restaurant_id
	Capacity     uint32 // tables.capacity
}
