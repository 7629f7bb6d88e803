package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/funding-monitor/internal/auth"
)

var (
	userEmail    string
	userPassword string
	userName     string
	userRole     string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage dashboard accounts",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a dashboard account",
	Long:  "Creates an account. The password is read from --password or FUNDCTL_PASSWORD.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := userPassword
		if password == "" {
			password = os.Getenv("FUNDCTL_PASSWORD")
		}

		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		svc := auth.NewService(env.pool, env.cfg.SessionTTL)
		user, err := svc.CreateUser(cmd.Context(), auth.CreateUserRequest{
			Email:    userEmail,
			Password: password,
			Name:     userName,
			Role:     userRole,
		})
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"ID", "Email", "Role", "Created"})
		t.AppendRow(table.Row{user.ID, user.Email, user.Role, user.CreatedAt.Local().Format("2006-01-02 15:04")})
		t.Render()
		return nil
	},
}

var usersPurgeCmd = &cobra.Command{
	Use:   "purge-sessions",
	Short: "Delete sessions that ended more than one session TTL ago",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		svc := auth.NewService(env.pool, env.cfg.SessionTTL)
		n, err := svc.PurgeExpiredSessions(cmd.Context(), time.Now().Add(-env.cfg.SessionTTL))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d sessions\n", n)
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "Login email")
	usersCreateCmd.Flags().StringVar(&userPassword, "password", "", "Login password")
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	usersCreateCmd.Flags().StringVar(&userRole, "role", auth.RoleUser, "user or admin")
	_ = usersCreateCmd.MarkFlagRequired("email")

	usersCmd.AddCommand(usersCreateCmd, usersPurgeCmd)
	rootCmd.AddCommand(usersCmd)
}
