/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/jobhub/apiserver/config"
	"github.com/jobhub/apiserver/internal/db"
	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/logging"
	"github.com/jobhub/apiserver/internal/services"
	"github.com/jobhub/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var adminInput services.RegisterInput

// createAdminCmd creates an admin account. Admins cannot be created over HTTP.
var createAdminCmd = &cobra.Command{
	Use:   "createadmin",
	Short: "Create an admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		userService := services.NewUserService(
			store.NewUserRepository(conn),
			services.NewResumeService(nil, logger),
			events.Nop{},
		)
		user, err := userService.CreateAdmin(cmd.Context(), adminInput)
		if err != nil {
			return err
		}
		logger.WithField("user_id", user.ID).WithField("email", user.Email).Info("admin created")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVar(&adminInput.Email, "email", "", "admin email address")
	createAdminCmd.Flags().StringVar(&adminInput.Password, "password", "", "admin password (at least 8 characters)")
	createAdminCmd.Flags().StringVar(&adminInput.FirstName, "first-name", "", "first name")
	createAdminCmd.Flags().StringVar(&adminInput.LastName, "last-name", "", "last name")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}
