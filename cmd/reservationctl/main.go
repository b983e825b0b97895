package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/utils"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reservationctl",
		Short: "Administrative commands for the table reservation service",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newTokenCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the reservation schema if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var dinerID uint64
	var ttlMin int

	c := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a diner (local testing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			if dinerID == 0 {
				return fmt.Errorf("--diner must be a positive id")
			}
			tok, err := utils.NewAccessToken(secret, dinerID, ttlMin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	c.Flags().Uint64Var(&dinerID, "diner", 0, "diner id placed in the sub claim")
	c.Flags().IntVar(&ttlMin, "ttl", 60, "lifetime in minutes")
	_ = c.MarkFlagRequired("diner")
	return c
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
