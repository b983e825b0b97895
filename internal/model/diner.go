package model

import "github.com/iliyamo/table-reservation/internal/restriction"

// Diner is a platform user who can attend reservations. Restrictions
// lists what must be honoured wherever they eat.
type Diner struct {
	ID           uint64           // diners.id
	Name         string           // diners.name
	Restrictions restriction.Mask // diners.restriction_mask
}
