package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfdevsllc/rocketctl/internal/appctx"
	"github.com/wolfdevsllc/rocketctl/internal/config"
	"github.com/wolfdevsllc/rocketctl/internal/credstore"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/tui"
)

// NewConfigCmd creates the config command for managing configuration.
func NewConfigCmd() *cobra.Command {
	cmd := offline(&cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage rocketctl configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > global > system > defaults

Config locations:
  - System: /etc/rocketctl/config.json
  - Global: ~/.config/rocketctl/config.json

Environment variables use the ROCKET_ prefix (ROCKET_API_URL, ROCKET_STORE, ...).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	})

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigCredentialsCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return offline(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information. Secrets are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	})
}

func runConfigShow(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	configData := make(map[string]any)
	for _, key := range config.Keys() {
		value := app.Config.Get(key)
		if value == "" {
			continue
		}
		if config.Secret(key) {
			value = mask(value)
		}
		source := app.Config.Sources[key]
		if source == "" {
			source = string(config.SourceDefault)
		}
		configData[key] = map[string]string{
			"value":  value,
			"source": source,
		}
	}

	return app.OK(configData,
		output.WithSummary("Effective configuration"),
		output.WithBreadcrumbs(
			output.Breadcrumb{
				Action:      "set",
				Cmd:         "rocketctl config set <key> <value>",
				Description: "Set config value",
			},
			output.Breadcrumb{
				Action:      "credentials",
				Cmd:         "rocketctl config credentials",
				Description: "Store Rocket.net credentials",
			},
		),
	)
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-2)
}

func newConfigSetCmd() *cobra.Command {
	return offline(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a value in the global config file.

Valid keys: ` + strings.Join(config.Keys(), ", "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}
			key, value := args[0], args[1]

			path, err := config.SetGlobal(key, value)
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			shown := value
			if config.Secret(key) {
				shown = mask(value)
			}
			return app.OK(map[string]any{
				"key":    key,
				"value":  shown,
				"path":   path,
				"status": "set",
			},
				output.WithSummary(fmt.Sprintf("Set %s = %s", key, shown)),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "show",
						Cmd:         "rocketctl config show",
						Description: "View config",
					},
				),
			)
		},
	})
}

func newConfigCredentialsCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store Rocket.net credentials",
		Long: `Store the Rocket.net email and password in the credential store.

Prompts interactively when flags are omitted. Changing credentials clears the
cached session token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}

			if email == "" || password == "" {
				if !app.IsInteractive() {
					return output.ErrUsage("--email and --password are required when not running interactively")
				}
				if email, password, err = tui.Credentials(email); err != nil {
					return err
				}
			}
			if err := tui.ValidateEmail(email); err != nil {
				return output.ErrInvalidInput("Invalid email: " + email)
			}

			if err := app.Auth.SetCredential(cmd.Context(), credstore.Credential{Email: email, Password: password}); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"email":  email,
				"store":  app.Store.Name(),
				"status": "saved",
			},
				output.WithSummary("Credentials saved to "+app.Store.Name()),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "login",
					Cmd:         "rocketctl auth login",
					Description: "Log in with the new credentials",
				}),
			)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Rocket.net account email")
	cmd.Flags().StringVar(&password, "password", "", "Rocket.net account password")

	return cmd
}
