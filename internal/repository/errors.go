// Package repository owns every persistent row of the booking core.  It is
// the only writer of reservations and attendance; higher layers call its
// check-and-insert operations and never issue SQL themselves.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// InnoDB aborts one side of a lock race with one of these codes and rolls
// back its whole transaction.
const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
)

// ErrContention is wrapped into statement errors that InnoDB raised because
// a concurrent transaction held the locks the statement needed.  The
// transaction that saw it is already rolled back and must not be reused.
var ErrContention = errors.New("lock contention")

// ErrInvalidSearch is returned by FindTables when the search does not name
// exactly one of a restriction mask or a restaurant.
var ErrInvalidSearch = errors.New("table search needs either restrictions or a restaurant id")

// UnknownDinersError is returned when some requested diner ids do not
// exist.  Handlers should translate it into an HTTP 400 response.
type UnknownDinersError struct {
	DinerIDs []uint64
}

func (e *UnknownDinersError) Error() string {
	return fmt.Sprintf("unknown diner ids %v", e.DinerIDs)
}

// wrapStorage annotates err with op and marks deadlocks and lock wait
// timeouts with ErrContention.
func wrapStorage(op string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == errDeadlock || me.Number == errLockWaitTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrContention, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
