package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/cloudbox/internal/app"
	"github.com/templui/cloudbox/internal/model"
)

// TokenCmd mints a session token for local development and scripted API access.
func TokenCmd() *cobra.Command {
	var userID, email string
	var admin bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for a user, creating the user if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				user, err := a.UserService.Ensure(cmd.Context(), userID, email)
				if err != nil {
					return err
				}

				if admin && !user.IsAdmin() {
					err = a.UserService.SetRole(cmd.Context(), user.ID, model.RoleAdmin)
					if err != nil {
						return err
					}
				}

				token, err := a.AuthService.GenerateJWT(user.ID, user.Email)
				if err != nil {
					return fmt.Errorf("failed to sign token: %w", err)
				}
				fmt.Println(token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
