package model

import "time"

// Reservation binds a party to one table at one datetime.
//
// Fields:
//  ID           – primary key identifier.
//  RestaurantID – restaurant owning the table.
//  TableID      – table being booked.
//  Capacity     – party size at booking time.
//  Datetime     – start of the booking, UTC.
//
// For a given table no two reservations lie strictly within the buffer
// window of each other. Cancelled reservations are hard deleted.
type Reservation struct {
	ID           uint64    `json:"id"`            // reservations.id
	RestaurantID uint64    `json:"restaurant_id"` // reservations.restaurant_id
	TableID      uint64    `json:"table_id"`      // reservations.table_id
	Capacity     uint32    `json:"capacity"`      // reservations.capacity
	Datetime     time.Time `json:"datetime"`      // reservations.datetime
}
