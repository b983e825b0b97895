package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/table-reservation/internal/restriction"
)

// DinerRepo reads diner restriction profiles, optionally through a Redis
// cache.
type DinerRepo struct {
	db    *sql.DB
	cache *ProfileCache
}

// NewDinerRepo binds a DinerRepo to db.  cache may be nil.
func NewDinerRepo(db *sql.DB, cache *ProfileCache) *DinerRepo {
	return &DinerRepo{db: db, cache: cache}
}

// FindRestrictionProfile merges the restriction masks of all given diners.
// It returns *UnknownDinersError when any id has no diners row.
func (r *DinerRepo) FindRestrictionProfile(ctx context.Context, dinerIDs []uint64) (restriction.Mask, error) {
	ids := uniqueIDs(dinerIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	masks, missing := r.cache.Get(ctx, ids)
	if len(missing) > 0 {
		loaded, err := r.loadMasks(ctx, missing)
		if err != nil {
			return 0, err
		}
		unknown := []uint64{}
		for _, id := range missing {
			if _, ok := loaded[id]; !ok {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			return 0, &UnknownDinersError{DinerIDs: unknown}
		}
		r.cache.Set(ctx, loaded)
		for id, m := range loaded {
			masks[id] = m
		}
	}
	var merged restriction.Mask
	for _, m := range masks {
		merged |= m
	}
	return merged, nil
}

func (r *DinerRepo) loadMasks(ctx context.Context, ids []uint64) (map[uint64]restriction.Mask, error) {
	in, args := inClause(nil, ids)
	rows, err := r.db.QueryContext(ctx, `SELECT id, restriction_mask FROM diners WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("load diner restrictions: %w", err)
	}
	defer rows.Close()
	out := make(map[uint64]restriction.Mask, len(ids))
	for rows.Next() {
		var id, mask uint64
		if err := rows.Scan(&id, &mask); err != nil {
			return nil, err
		}
		out[id] = restriction.Mask(mask)
	}
	return out, rows.Err()
}
