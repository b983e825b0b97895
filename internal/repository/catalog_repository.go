package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/table-reservation/internal/model"
)

// Catalog is the reference data the booking core reads but never writes:
// restaurants, their tables and the diners who can book them.
type Catalog struct {
	Restaurants []model.Restaurant
	Tables      []model.Table
	Diners      []model.Diner
}

// CatalogRepo loads reference data.  It backs administrative seeding only.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo returns a CatalogRepo bound to db.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// Seed upserts every row of c in one transaction, restaurants first so
// table foreign keys resolve.  Explicit ids are kept so fixtures stay
// stable across runs.
func (r *CatalogRepo) Seed(ctx context.Context, c Catalog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, rest := range c.Restaurants {
		if err := r.UpsertRestaurantTx(ctx, tx, rest); err != nil {
			return err
		}
	}
	for _, t := range c.Tables {
		if err := r.UpsertTableTx(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, d := range c.Diners {
		if err := r.UpsertDinerTx(ctx, tx, d); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// UpsertRestaurantTx inserts or updates one restaurant.
func (r *CatalogRepo) UpsertRestaurantTx(ctx context.Context, tx *sql.Tx, rest model.Restaurant) error {
	const q = `INSERT INTO restaurants (id, name, restriction_mask) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), restriction_mask = VALUES(restriction_mask)`
	if _, err := tx.ExecContext(ctx, q, rest.ID, rest.Name, uint64(rest.Restrictions)); err != nil {
		return fmt.Errorf("upsert restaurant %d: %w", rest.ID, err)
	}
	return nil
}

// UpsertTableTx inserts or updates one table.  Capacity must be at least 1.
func (r *CatalogRepo) UpsertTableTx(ctx context.Context, tx *sql.Tx, t model.Table) error {
	if t.Capacity < 1 {
		return fmt.Errorf("table %d: capacity must be at least 1", t.ID)
	}
	const q = "INSERT INTO `tables` (id, restaurant_id, capacity) VALUES (?, ?, ?)" + `
		ON DUPLICATE KEY UPDATE restaurant_id = VALUES(restaurant_id), capacity = VALUES(capacity)`
	if _, err := tx.ExecContext(ctx, q, t.ID, t.RestaurantID, t.Capacity); err != nil {
		return fmt.Errorf("upsert table %d: %w", t.ID, err)
	}
	return nil
}

// UpsertDinerTx inserts or updates one diner.  Cached profiles are not
// invalidated and keep serving the old mask until their TTL runs out.
func (r *CatalogRepo) UpsertDinerTx(ctx context.Context, tx *sql.Tx, d model.Diner) error {
	const q = `INSERT INTO diners (id, name, restriction_mask) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), restriction_mask = VALUES(restriction_mask)`
	if _, err := tx.ExecContext(ctx, q, d.ID, d.Name, uint64(d.Restrictions)); err != nil {
		return fmt.Errorf("upsert diner %d: %w", d.ID, err)
	}
	return nil
}
