package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/restriction"
)

// catalogFile is the on-disk fixture format.  Restrictions are listed by
// id and encoded to masks on load.
type catalogFile struct {
	Restaurants []struct {
		ID             uint64 `json:"id"`
		Name           string `json:"name"`
		RestrictionIDs []int  `json:"restriction_ids"`
	} `json:"restaurants"`
	Tables []struct {
		ID           uint64 `json:"id"`
		RestaurantID uint64 `json:"restaurant_id"`
		Capacity     uint32 `json:"capacity"`
	} `json:"tables"`
	Diners []struct {
		ID             uint64 `json:"id"`
		Name           string `json:"name"`
		RestrictionIDs []int  `json:"restriction_ids"`
	} `json:"diners"`
}

func loadCatalog(r io.Reader) (repository.Catalog, error) {
	var f catalogFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return repository.Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	var c repository.Catalog
	for _, rest := range f.Restaurants {
		mask, err := restriction.Encode(rest.RestrictionIDs)
		if err != nil {
			return repository.Catalog{}, fmt.Errorf("restaurant %d: %w", rest.ID, err)
		}
		c.Restaurants = append(c.Restaurants, model.Restaurant{ID: rest.ID, Name: rest.Name, Restrictions: mask})
	}
	for _, t := range f.Tables {
		c.Tables = append(c.Tables, model.Table{ID: t.ID, RestaurantID: t.RestaurantID, Capacity: t.Capacity})
	}
	for _, d := range f.Diners {
		mask, err := restriction.Encode(d.RestrictionIDs)
		if err != nil {
			return repository.Catalog{}, fmt.Errorf("diner %d: %w", d.ID, err)
		}
		c.Diners = append(c.Diners, model.Diner{ID: d.ID, Name: d.Name, Restrictions: mask})
	}
	return c, nil
}

func newSeedCmd() *cobra.Command {
	var path string

	c := &cobra.Command{
		Use:   "seed",
		Short: "Load restaurants, tables and diners from a JSON catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			catalog, err := loadCatalog(f)
			if err != nil {
				return err
			}

			cfg := config.Load()
			db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			if err := repository.NewCatalogRepo(db).Seed(cmd.Context(), catalog); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d restaurants, %d tables, %d diners\n",
				len(catalog.Restaurants), len(catalog.Tables), len(catalog.Diners))
			return nil
		},
	}
	c.Flags().StringVar(&path, "file", "catalog.example.json", "catalog file")
	return c
}
