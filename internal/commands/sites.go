package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfdevsllc/rocketctl/internal/appctx"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/sites"
	"github.com/wolfdevsllc/rocketctl/internal/tui"
	"github.com/wolfdevsllc/rocketctl/internal/units"
)

// NewSitesCmd creates the sites command group.
func NewSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sites",
		Aliases: []string{"site"},
		Short:   "Manage Rocket.net sites",
		Long:    "Create, inspect, update, and delete Rocket.net sites, and issue control panel tokens.",
	}

	cmd.AddCommand(
		newSitesCreateCmd(),
		newSitesGetCmd(),
		newSitesListCmd(),
		newSitesUpdateCmd(),
		newSitesDeleteCmd(),
		newSitesTokenCmd(),
		newSitesPanelURLCmd(),
	)

	return cmd
}

func newSitesCreateCmd() *cobra.Command {
	var spec sites.CreateSpec
	var plugins string
	var pickLocation bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a site",
		Long: `Create a WordPress site.

Quota and bandwidth are in MB; zero means unlimited. When --admin-password is
omitted a random password is generated and shown once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}
			if plugins != "" {
				spec.InstallPlugins = strings.Split(plugins, ",")
			}
			if pickLocation {
				if spec.Location, err = pickSiteLocation(cmd, app); err != nil {
					return err
				}
			}

			var site *sites.Site
			create := func() error {
				site, err = app.Sites.Create(cmd.Context(), spec)
				return err
			}
			if app.IsInteractive() {
				err = tui.NewSpinner("Creating "+spec.Domain, cmd.ErrOrStderr()).Run(create)
			} else {
				err = create()
			}
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("Created site %s (quota %s, bandwidth %s)", site.ID,
				units.FormatMB(spec.QuotaMB), units.FormatBandwidth(spec.BandwidthMB))
			if site.AdminPassword != "" {
				summary += "; save the generated admin password, it is not shown again"
			}
			return app.OK(site,
				output.WithSummary(summary),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "panel",
					Cmd:         "rocketctl sites panel-url " + site.ID,
					Description: "Open the control panel",
				}),
			)
		},
	}

	f := cmd.Flags()
	f.StringVar(&spec.Domain, "domain", "", "Site domain (required)")
	f.StringVar(&spec.Name, "name", "", "Site name (required)")
	f.StringVar(&spec.AdminEmail, "admin-email", "", "WordPress admin email (required)")
	f.IntVar(&spec.Location, "location", 0, "Location id (default from config)")
	f.StringVar(&spec.AdminUsername, "admin-username", "", "WordPress admin username (default from config)")
	f.StringVar(&spec.AdminPassword, "admin-password", "", "WordPress admin password (generated when empty)")
	f.BoolVar(&spec.Multisite, "multisite", false, "Create a multisite install")
	f.StringVar(&plugins, "plugins", "", "Comma-separated plugin slugs to install")
	f.Int64Var(&spec.QuotaMB, "quota", 0, "Disk quota in MB (0 = unlimited)")
	f.Int64Var(&spec.BandwidthMB, "bandwidth", 0, "Bandwidth limit in MB (0 = unlimited)")
	f.StringVar(&spec.Label, "label", "", "Display label (default: name)")
	f.BoolVar(&pickLocation, "pick-location", false, "Choose the location interactively")

	return cmd
}

func newSitesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}
			site, err := app.Sites.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.OK(site, output.WithSummary("Site "+site.ID))
		},
	}
}

func newSitesListCmd() *cobra.Command {
	var filter sites.ListFilter
	var extra []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sites",
		Long:  "List one page of sites. Extra provider filters can be passed with --filter key=value.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}
			filter.Extra, err = parsePairs(extra)
			if err != nil {
				return err
			}

			list, err := app.Sites.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return app.OK(list, output.WithSummary(fmt.Sprintf("%d sites", len(list))))
		},
	}

	cmd.Flags().IntVar(&filter.Page, "page", sites.DefaultPage, "Page number")
	cmd.Flags().IntVar(&filter.PerPage, "per-page", sites.DefaultPerPage, "Sites per page")
	cmd.Flags().StringArrayVar(&extra, "filter", nil, "Extra query parameter (key=value, repeatable)")

	return cmd
}

func newSitesUpdateCmd() *cobra.Command {
	var data string
	var set []string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a site",
		Long: `Update site fields. Pass a JSON object with --data, or individual
fields with --set key=value (repeatable).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}

			patch := map[string]any{}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &patch); err != nil {
					return output.ErrUsage("--data must be a JSON object")
				}
			}
			pairs, err := parsePairs(set)
			if err != nil {
				return err
			}
			for k, v := range pairs {
				patch[k] = v
			}

			if _, err := app.Sites.Update(cmd.Context(), args[0], patch); err != nil {
				return err
			}
			return app.OK(map[string]any{"id": args[0], "updated": true},
				output.WithSummary("Updated site "+args[0]))
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "JSON object of fields to update")
	cmd.Flags().StringArrayVar(&set, "set", nil, "Field to update (key=value, repeatable)")

	return cmd
}

func newSitesDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}
			if err := confirmDelete(app, args[0], yes); err != nil {
				return err
			}

			if _, err := app.Sites.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return app.OK(map[string]any{"id": args[0], "deleted": true},
				output.WithSummary("Deleted site "+args[0]))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}

func confirmDelete(app *appctx.App, id string, yes bool) error {
	if yes {
		return nil
	}
	if !app.IsInteractive() {
		return output.ErrUsageHint("Refusing to delete without confirmation", "Pass --yes to delete non-interactively")
	}
	ok, err := tui.ConfirmDangerous("Delete site " + id + "?")
	if err != nil {
		return err
	}
	if !ok {
		return output.ErrUsage("Deletion canceled")
	}
	return nil
}

func newSitesTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <id>",
		Short: "Issue a control panel access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}
			token, err := app.Sites.AccessToken(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			return app.OK(map[string]string{"id": args[0], "token": token},
				output.WithSummary("Access token for site "+args[0]))
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default from config)")

	return cmd
}

func newSitesPanelURLCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "panel-url <id>",
		Short: "Print a signed control panel link",
		Long:  "Issue an access token and print the control panel URL that uses it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}
			token, err := app.Sites.AccessToken(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			url := app.Sites.ControlPanelURL(args[0], token)
			return app.OK(map[string]string{"id": args[0], "url": url}, output.WithSummary(url))
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default from config)")

	return cmd
}

// parsePairs parses key=value arguments.
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, output.ErrUsage(fmt.Sprintf("expected key=value, got %q", p))
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func pickSiteLocation(cmd *cobra.Command, app *appctx.App) (int, error) {
	if !app.IsInteractive() {
		return 0, output.ErrUsage("--pick-location needs an interactive terminal")
	}
	locs := app.Sites.Locations(cmd.Context())
	options := make([]tui.SelectOption, 0, len(locs))
	for _, l := range locs {
		if l.Numeric() {
			options = append(options, tui.SelectOption{Value: l.ID, Label: l.Name + " (" + l.ID + ")"})
		}
	}
	choice, err := tui.Select("Location", options)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(choice)
}
