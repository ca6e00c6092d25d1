package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/sites"
)

// NewLocationsCmd creates the locations command.
func NewLocationsCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "locations",
		Short: "List deployable locations",
		Long: `List the locations a site can be created in.

The catalog is cached for a day. When the API is unreachable a built-in list
is shown and cached for an hour.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}

			var locs []sites.Location
			if refresh {
				locs = app.Sites.RefreshLocations(cmd.Context())
			} else {
				locs = app.Sites.Locations(cmd.Context())
			}

			return app.OK(locs,
				output.WithSummary(fmt.Sprintf("%d locations", len(locs))),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "create",
					Cmd:         "rocketctl sites create --location <id> ...",
					Description: "Create a site in a location",
				}),
			)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cached catalog")

	return cmd
}
