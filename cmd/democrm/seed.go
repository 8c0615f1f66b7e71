package main

import (
	"fmt"
	"strings"

	"democrm-backend/pkg/database"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/seed"

	"github.com/spf13/cobra"
)

func newSeedCommand() *cobra.Command {
	var (
		email       string
		create      bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed demo data for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.GetDatabase(database.DatabaseConfig{
				UseLocalDB:  cfg.UseLocalDB,
				PostgresDSN: cfg.PostgresDSN,
				Debug:       cfg.Debug,
			})
			if err != nil {
				return err
			}
			defer database.CloseDatabase()

			ctx := cmd.Context()
			email = strings.ToLower(strings.TrimSpace(email))
			user, err := db.GetUserByEmail(ctx, email)
			if database.IsNotFound(err) && create {
				user = &models.User{Email: email}
				err = db.CreateUser(ctx, user)
			}
			if err != nil {
				return fmt.Errorf("failed to resolve user %s: %w", email, err)
			}

			summary, err := seed.NewSeeder(db, seed.WithConcurrency(concurrency)).Seed(ctx, user.ID)
			if err != nil {
				return err
			}
			fmt.Printf("🌱 Seeded company %s: %d clients, %d tasks, %d meetings\n",
				summary.CompanyID, summary.Clients, summary.Tasks, summary.Meetings)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email of the user to seed")
	cmd.Flags().BoolVar(&create, "create", false, "Create the user when it does not exist")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum inserts in flight")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
