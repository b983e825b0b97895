package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/restriction"
)

// TableSearch describes one availability lookup.  Exactly one of
// Restrictions (broad search by dietary compatibility) or RestaurantID
// (narrow re-check of one restaurant) must be set.
type TableSearch struct {
	Capacity     uint32
	Datetime     time.Time
	Restrictions *restriction.Mask
	RestaurantID uint64
}

func (s TableSearch) valid() bool {
	return (s.Restrictions != nil) != (s.RestaurantID != 0)
}

// FindTables returns every free table large enough for the party, grouped
// by restaurant with the smallest tables first.  A table is free when it has
// no reservation strictly inside the buffer window around s.Datetime.  An
// empty map means nothing qualifies.
func (r *ReservationRepo) FindTables(ctx context.Context, s TableSearch) (model.TablesByRestaurant, error) {
	return r.findTables(ctx, r.db, s)
}

// FindTablesTx is FindTables inside the caller's transaction.
func (r *ReservationRepo) FindTablesTx(ctx context.Context, tx *sql.Tx, s TableSearch) (model.TablesByRestaurant, error) {
	return r.findTables(ctx, tx, s)
}

func (r *ReservationRepo) findTables(ctx context.Context, q querier, s TableSearch) (model.TablesByRestaurant, error) {
	if !s.valid() {
		return nil, ErrInvalidSearch
	}
	lo, hi := r.window(s.Datetime)
	args := []any{lo, hi, s.Capacity}
	cond := ""
	if s.Restrictions != nil {
		cond = " AND (r.restriction_mask & ?) = ?"
		args = append(args, uint64(*s.Restrictions), uint64(*s.Restrictions))
	}
	if s.RestaurantID != 0 {
		cond = " AND r.id = ?"
		args = append(args, s.RestaurantID)
	}
	query := `SELECT t.id, t.restaurant_id
		FROM ` + "`tables`" + ` t
		JOIN restaurants r ON r.id = t.restaurant_id
		LEFT JOIN reservations rs ON rs.table_id = t.id
			AND rs.datetime > ? AND rs.datetime < ?
		WHERE rs.id IS NULL
			AND t.capacity >= ?` + cond + `
		ORDER BY t.restaurant_id ASC, t.capacity ASC, t.id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStorage("find tables", err)
	}
	defer rows.Close()
	out := model.TablesByRestaurant{}
	for rows.Next() {
		var tableID, restaurantID uint64
		if err := rows.Scan(&tableID, &restaurantID); err != nil {
			return nil, err
		}
		out[restaurantID] = append(out[restaurantID], tableID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
