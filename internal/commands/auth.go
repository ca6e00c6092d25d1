// Package commands implements the CLI commands.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfdevsllc/rocketctl/internal/auth"
	"github.com/wolfdevsllc/rocketctl/internal/output"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Log in to Rocket.net, inspect the cached session token, and test connectivity.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTestCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and cache a session token",
		Long:  "Exchange the configured credentials for a session token and store it encrypted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}

			if _, err := app.Auth.Refresh(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"status": "logged_in",
				"store":  app.Store.Name(),
			},
				output.WithSummary("Logged in to Rocket.net"),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "test",
					Cmd:         "rocketctl auth test",
					Description: "Test the connection",
				}),
			)
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	var forget bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached session token",
		Long:  "Delete the cached token and its cipher material. With --forget, stored credentials are removed too.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}

			if forget {
				err = app.Auth.DeleteCredential(cmd.Context())
			} else {
				err = app.Auth.Clear(cmd.Context())
			}
			if err != nil {
				return err
			}

			return app.OK(map[string]any{
				"status":              "logged_out",
				"credentials_removed": forget,
			}, output.WithSummary("Successfully logged out"))
		},
	}

	cmd.Flags().BoolVar(&forget, "forget", false, "Also remove stored credentials")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the token state, credential availability, and token claims when readable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			state := app.Auth.State(ctx)
			status := map[string]any{
				"api_url":         app.Config.APIURL,
				"store":           app.Store.Name(),
				"state":           state.String(),
				"has_credentials": app.Auth.HasCredentials(ctx),
			}

			summary := "Not logged in"
			if state == auth.TokenCached {
				summary = "Logged in"
				if token, err := app.Auth.OpenCached(ctx); err == nil {
					if info := auth.Inspect(token); info != nil {
						status["token"] = info
						if info.Expired(time.Now()) {
							summary = "Logged in (token expired, will refresh on next request)"
						}
					}
				} else {
					summary = "Cached token unreadable, will refresh on next request"
				}
			}

			return app.OK(status, output.WithSummary(summary))
		},
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		Long:  "Log in again and replace the cached token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}

			if _, err := app.Auth.Refresh(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{"status": "refreshed"},
				output.WithSummary("Token refreshed"))
		},
	}
}

func newAuthTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the Rocket.net connection",
		Long:  "Obtain a token and make one read-only API call.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}

			res := app.Auth.TestConnection(cmd.Context())
			if !res.Success {
				return output.ErrAPI(0, res.Message)
			}
			return app.OK(res, output.WithSummary(res.Message))
		},
	}
}
