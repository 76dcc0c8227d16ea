// ABOUTME: user subcommands for managing accounts and profiles in the store
// ABOUTME: add creates a user with a bcrypt-hashed password; grant assigns profiles

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/me/gatehouse/internal/config"
	"github.com/me/gatehouse/internal/store"
)

var (
	userPassword string
	userDisplay  string
	userProfiles []string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUserAdd(cmd.Context(), args[0])
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUserList(cmd.Context())
	},
}

var userGrantCmd = &cobra.Command{
	Use:   "grant <username> <profile>",
	Short: "Grant an authorization profile to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUserGrant(cmd.Context(), args[0], args[1])
	},
}

func init() {
	userAddCmd.Flags().StringVarP(&userPassword, "password", "p", "", "password (empty creates a trust-only account)")
	userAddCmd.Flags().StringVar(&userDisplay, "display-name", "", "display name")
	userAddCmd.Flags().StringSliceVar(&userProfiles, "profile", nil, "profile to grant (repeatable)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userGrantCmd)
}

// openStore loads the config and opens the SQLite store.
func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Database.Path)
}

func runUserAdd(ctx context.Context, username string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var hash string
	if userPassword != "" {
		hash, err = store.HashPassword(userPassword)
		if err != nil {
			return err
		}
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		DisplayName:  userDisplay,
		CreatedAt:    time.Now(),
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return err
	}

	for _, profile := range userProfiles {
		if err := s.GrantProfile(ctx, username, profile); err != nil {
			return err
		}
	}

	color.Green("created user %s", username)
	if len(userProfiles) > 0 {
		fmt.Printf("profiles: %v\n", userProfiles)
	}
	if userPassword == "" {
		color.Yellow("no password set: account can only authenticate via trust delegation")
	}
	return nil
}

func runUserList(ctx context.Context) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("no users")
		return nil
	}

	bold := color.New(color.Bold)
	for _, u := range users {
		bold.Print(u.Username)
		profiles, err := s.ListProfiles(ctx, u.Username)
		if err != nil {
			return err
		}
		if len(profiles) > 0 {
			fmt.Printf("  %v", profiles)
		}
		if u.LastLoginAt != nil {
			fmt.Printf("  last login %s", u.LastLoginAt.Format(time.RFC3339))
		}
		fmt.Println()
	}
	return nil
}

func runUserGrant(ctx context.Context, username, profile string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.GetUserByUsername(ctx, username); err != nil {
		return err
	}
	if err := s.GrantProfile(ctx, username, profile); err != nil {
		return err
	}

	color.Green("granted %s to %s", profile, username)
	return nil
}
