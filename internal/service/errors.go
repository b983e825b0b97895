package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/restriction"
)

// Business outcomes of the booking protocol.  They are expected results,
// never crashes; handlers map them to HTTP statuses.
var (
	// ErrDateInPast: the requested datetime is not strictly in the future.
	ErrDateInPast = errors.New("date should be in the future")
	// ErrInvalidRestaurantID: the restaurant is absent from the availability snapshot.
	ErrInvalidRestaurantID = errors.New("invalid restaurant id")
	// ErrNoTableAvailable: the snapshot was stale and the single re-check found nothing.
	ErrNoTableAvailable = errors.New("no table available")
	// ErrNotAllDinersAvailable: at least one diner holds a conflicting booking.
	ErrNotAllDinersAvailable = errors.New("not all diners available")
)

// DinersUnavailableError is returned by Reserve after compensation.  It
// matches ErrNotAllDinersAvailable and lists the diners found to hold a
// conflicting booking (possibly empty if they could not be determined).
type DinersUnavailableError struct {
	DinerIDs []uint64
}

func (e *DinersUnavailableError) Error() string {
	if len(e.DinerIDs) == 0 {
		return ErrNotAllDinersAvailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrNotAllDinersAvailable, e.DinerIDs)
}

func (e *DinersUnavailableError) Unwrap() error { return ErrNotAllDinersAvailable }

// IsValidation reports caller-fixable input errors.
func IsValidation(err error) bool {
	var oor restriction.ErrOutOfRange
	var unknown *repository.UnknownDinersError
	return errors.Is(err, ErrDateInPast) ||
		errors.Is(err, ErrInvalidRestaurantID) ||
		errors.As(err, &oor) ||
		errors.As(err, &unknown)
}

// IsConflict reports contention outcomes; the caller may run a fresh
// search and try again.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNoTableAvailable) || errors.Is(err, ErrNotAllDinersAvailable)
}
