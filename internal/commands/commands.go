package commands

import (
	"github.com/spf13/cobra"

	"github.com/wolfdevsllc/rocketctl/internal/appctx"
	"github.com/wolfdevsllc/rocketctl/internal/output"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

// commandCategories returns all command categories for the catalog.
func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Sites",
			Commands: []CommandInfo{
				{Name: "sites", Category: "sites", Description: "Manage Rocket.net sites", Actions: []string{"create", "get", "list", "update", "delete", "token", "panel-url"}},
				{Name: "locations", Category: "sites", Description: "List deployable locations"},
			},
		},
		{
			Name: "Account",
			Commands: []CommandInfo{
				{Name: "auth", Category: "account", Description: "Manage authentication", Actions: []string{"login", "logout", "status", "refresh", "test"}},
				{Name: "config", Category: "account", Description: "Manage configuration", Actions: []string{"show", "set", "credentials"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "serve", Category: "additional", Description: "Serve site operations over HTTP"},
				{Name: "commands", Category: "additional", Description: "List all available commands"},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
// Used by tests to verify catalog matches registered commands.
func CatalogCommandNames() []string {
	categories := commandCategories()
	total := 0
	for _, cat := range categories {
		total += len(cat.Commands)
	}
	names := make([]string, 0, total)
	for _, cat := range categories {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return offline(&cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		Long:    "List all available rocketctl commands organized by category.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			return app.OK(commandCategories(),
				output.WithSummary("All available rocketctl commands"),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "help",
						Cmd:         "rocketctl --help",
						Description: "View help",
					},
				),
			)
		},
	})
}
