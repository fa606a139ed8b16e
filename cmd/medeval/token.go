package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/medeval/internal/auth"
	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/repository"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token for a directory user",
	Long: `Mint a bearer token signed with JWT_SECRET for a user in the directory.
The token carries the user's id and role. Intended for local development;
production tokens come from the identity provider.`,
	RunE: runToken,
}

var tokenFlags struct {
	user string
	ttl  time.Duration
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.user, "user", "", "user id")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	user, err := db.GetSubject(cmd.Context(), tokenFlags.user)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s not found", tokenFlags.user)
	}

	token, err := auth.NewVerifier(cfg.JWTSecret).Issue(domain.Principal{ActorID: user.UserID, Role: user.Role}, tokenFlags.ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
