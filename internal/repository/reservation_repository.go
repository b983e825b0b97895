package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// DefaultBuffer is the minimum distance between two bookings of the same
// table or the same diner.
const DefaultBuffer = 2 * time.Hour

// ReservationRepo provides the atomic booking primitives over the
// reservations and attendance tables.  Every write folds its conflict
// check into the INSERT or DELETE statement itself, so two concurrent
// callers can never both observe "free" and both insert.  All timestamps
// are UTC.
type ReservationRepo struct {
	db     *sql.DB
	buffer time.Duration
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
// A non-positive buffer falls back to DefaultBuffer.
func NewReservationRepo(db *sql.DB, buffer time.Duration) *ReservationRepo {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &ReservationRepo{db: db, buffer: buffer}
}

// DB exposes the underlying handle so callers can open a unit of work.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// Buffer returns the configured buffer window.
func (r *ReservationRepo) Buffer() time.Duration { return r.buffer }

// window returns the open interval (at-buffer, at+buffer).  A booking
// exactly buffer away is allowed; anything strictly closer conflicts.
func (r *ReservationRepo) window(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	return at.Add(-r.buffer), at.Add(r.buffer)
}

// CreateTx books the smallest candidate table that is still free at the
// given datetime.  Selection and insertion happen in one INSERT ... SELECT
// statement.  It returns ok=false when every candidate is now occupied or
// when tableIDs is empty.  The caller must commit or roll back tx.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, tableIDs []uint64, capacity uint32, at time.Time) (uint64, bool, error) {
	ids := uniqueIDs(tableIDs)
	if len(ids) == 0 {
		return 0, false, nil
	}
	lo, hi := r.window(at)
	args := []any{capacity, at.UTC(), lo, hi}
	in, args := inClause(args, ids)
	args = append(args, capacity)
	// smallest sufficient table first, id breaks ties deterministically
	q := `INSERT INTO reservations (restaurant_id, table_id, capacity, datetime)
		SELECT t.restaurant_id, t.id, ?, ?
		FROM ` + "`tables`" + ` t
		LEFT JOIN reservations rs ON rs.table_id = t.id
			AND rs.datetime > ? AND rs.datetime < ?
		WHERE rs.id IS NULL
			AND t.id IN (` + in + `)
			AND t.capacity >= ?
		ORDER BY t.capacity ASC, t.id ASC
		LIMIT 1`
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, false, wrapStorage("create reservation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return uint64(id), true, nil
}

// AttachDinersTx inserts one attendance row per diner that has no other
// attendance inside its own buffer window.  Conflicted diners are skipped
// silently; the returned count lets the caller detect partial success by
// comparing it with the number of distinct diner ids requested.
func (r *ReservationRepo) AttachDinersTx(ctx context.Context, tx *sql.Tx, reservationID uint64, dinerIDs []uint64, at time.Time) (int, error) {
	ids := uniqueIDs(dinerIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	lo, hi := r.window(at)
	args := []any{reservationID, at.UTC(), lo, hi}
	in, args := inClause(args, ids)
	q := `INSERT INTO attendance (diner_id, reservation_id, datetime)
		SELECT d.id, ?, ?
		FROM diners d
		LEFT JOIN attendance a ON a.diner_id = d.id
			AND a.datetime > ? AND a.datetime < ?
		WHERE a.id IS NULL
			AND d.id IN (` + in + `)`
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, wrapStorage("attach diners", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ConflictingDinersTx returns the diners among dinerIDs that already
// attend another reservation inside the buffer window of at.  Attendance
// on excludeReservationID is ignored so the freshly attached rows of the
// reservation being built do not count against themselves.
func (r *ReservationRepo) ConflictingDinersTx(ctx context.Context, tx *sql.Tx, dinerIDs []uint64, at time.Time, excludeReservationID uint64) ([]uint64, error) {
	ids := uniqueIDs(dinerIDs)
	if len(ids) == 0 {
		return []uint64{}, nil
	}
	lo, hi := r.window(at)
	args := []any{lo, hi, excludeReservationID}
	in, args := inClause(args, ids)
	q := `SELECT DISTINCT a.diner_id
		FROM attendance a
		WHERE a.datetime > ? AND a.datetime < ?
			AND a.reservation_id <> ?
			AND a.diner_id IN (` + in + `)
		ORDER BY a.diner_id`
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapStorage("conflicting diners", err)
	}
	defer rows.Close()
	out := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteForDiner cancels a reservation on behalf of one of its attendees.
// Nothing is removed unless dinerID attends the reservation and its
// datetime is still after now.  Attendance rows go with it through the
// foreign key cascade.  It reports whether a row was removed.
func (r *ReservationRepo) DeleteForDiner(ctx context.Context, reservationID, dinerID uint64, now time.Time) (bool, error) {
	const q = `DELETE FROM reservations
		WHERE id = ?
			AND datetime > ?
			AND EXISTS (
				SELECT 1 FROM attendance a
				WHERE a.reservation_id = reservations.id AND a.diner_id = ?
			)`
	res, err := r.db.ExecContext(ctx, q, reservationID, now.UTC(), dinerID)
	if err != nil {
		return false, wrapStorage("delete reservation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ForceDeleteTx removes a reservation unconditionally.  It exists for
// compensation only.  false means the row was already gone.
func (r *ReservationRepo) ForceDeleteTx(ctx context.Context, tx *sql.Tx, reservationID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, reservationID)
	if err != nil {
		return false, wrapStorage("force delete reservation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUpcomingByDiner returns the reservations dinerID attends whose
// datetime is after now, earliest first.
func (r *ReservationRepo) ListUpcomingByDiner(ctx context.Context, dinerID uint64, now time.Time) ([]model.Reservation, error) {
	const q = `SELECT r.id, r.restaurant_id, r.table_id, r.capacity, r.datetime
		FROM reservations r
		JOIN attendance a ON a.reservation_id = r.id
		WHERE a.diner_id = ? AND r.datetime > ?
		ORDER BY r.datetime ASC, r.id ASC`
	rows, err := r.db.QueryContext(ctx, q, dinerID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.RestaurantID, &res.TableID, &res.Capacity, &res.Datetime); err != nil {
			return nil, err
		}
		res.Datetime = res.Datetime.UTC()
		out = append(out, res)
	}
	return out, rows.Err()
}
