package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/repository"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage directory entries",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a trainee, evaluator or admin to the directory",
	Example: `  medeval user add --name "Sam Lee" --email sam@example.org --role student --department "Internal Medicine"
  medeval user add --name "Dr. Grey" --role evaluator --department "Internal Medicine"`,
	RunE: runUserAdd,
}

var userAddFlags struct {
	id         string
	name       string
	email      string
	role       string
	department string
}

func init() {
	f := userAddCmd.Flags()
	f.StringVar(&userAddFlags.id, "id", "", "user id (generated when empty)")
	f.StringVar(&userAddFlags.name, "name", "", "display name")
	f.StringVar(&userAddFlags.email, "email", "", "email address")
	f.StringVar(&userAddFlags.role, "role", string(domain.RoleTrainee), "role: student, evaluator or admin")
	f.StringVar(&userAddFlags.department, "department", "", "department")
	_ = userAddCmd.MarkFlagRequired("name")
	_ = userAddCmd.MarkFlagRequired("department")

	userCmd.AddCommand(userAddCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	role := domain.Role(strings.ToLower(userAddFlags.role))
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", userAddFlags.role)
	}

	id := userAddFlags.id
	if id == "" {
		id = uuid.New().String()
	}

	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	subject := &domain.Subject{
		UserID:     id,
		Name:       userAddFlags.name,
		Email:      userAddFlags.email,
		Role:       role,
		Department: userAddFlags.department,
	}
	if err := db.CreateSubject(cmd.Context(), subject); err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
