// Package cli wires the root command and global flags.
package cli

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfdevsllc/rocketctl/internal/appctx"
	"github.com/wolfdevsllc/rocketctl/internal/commands"
	"github.com/wolfdevsllc/rocketctl/internal/config"
	"github.com/wolfdevsllc/rocketctl/internal/hostutil"
	"github.com/wolfdevsllc/rocketctl/internal/output"
	"github.com/wolfdevsllc/rocketctl/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "rocketctl",
		Short:         "Provision and manage Rocket.net sites",
		Long:          "rocketctl creates, inspects and manages WordPress sites hosted on Rocket.net.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				APIURL:   hostutil.Normalize(flags.APIURL),
				Store:    flags.Store,
				CacheDir: flags.CacheDir,
				Verbose:  flags.Verbose > 0,
			})
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			app := appctx.NewApp(cfg)
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app := appctx.FromContext(cmd.Context()); app != nil {
				return app.Close()
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().BoolVar(&flags.IDsOnly, "ids-only", false, "Output only IDs")

	// Provider flags
	cmd.PersistentFlags().StringVar(&flags.APIURL, "api-url", "", "Rocket.net API base URL")
	cmd.PersistentFlags().StringVar(&flags.Store, "store", "", "Credential store backend (file, keyring, sqlite, postgres, redis, memory)")
	cmd.PersistentFlags().StringVar(&flags.CacheDir, "cache-dir", "", "Cache directory")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (debug logging)")

	return cmd
}

// AddCommands registers every subcommand on root.
func AddCommands(root *cobra.Command) {
	root.AddCommand(commands.NewAuthCmd())
	root.AddCommand(commands.NewSitesCmd())
	root.AddCommand(commands.NewLocationsCmd())
	root.AddCommand(commands.NewConfigCmd())
	root.AddCommand(commands.NewServeCmd())
	root.AddCommand(commands.NewCommandsCmd())
	root.AddCommand(commands.NewVersionCmd())
}

// Execute runs the root command.
func Execute() {
	cmd := NewRootCmd()
	AddCommands(cmd)

	executedCmd, err := cmd.ExecuteC()
	if err != nil {
		err = transformCobraError(err)
		apiErr := output.AsError(err)

		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			_ = app.Close()
			os.Exit(apiErr.ExitCode())
		}

		// Setup failed before the app existed.
		pf := cmd.PersistentFlags()
		format := output.FormatAuto
		quiet, _ := pf.GetBool("quiet")
		idsOnly, _ := pf.GetBool("ids-only")
		styled, _ := pf.GetBool("styled")
		jsonFlag, _ := pf.GetBool("json")

		switch {
		case idsOnly:
			format = output.FormatIDs
		case quiet:
			format = output.FormatQuiet
		case jsonFlag:
			format = output.FormatJSON
		case styled:
			format = output.FormatStyled
		}

		writer := output.New(output.Options{
			Format: format,
			Writer: os.Stdout,
		})
		_ = writer.Err(err)

		os.Exit(apiErr.ExitCode())
	}
}

var shorthandFlagRE = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError rewrites cobra's argument and flag errors as usage errors.
func transformCobraError(err error) error {
	msg := err.Error()

	if strings.HasPrefix(msg, "flag needs an argument: ") {
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")
	}

	if strings.HasPrefix(msg, "unknown flag: ") {
		return output.ErrUsage("Unknown option: " + strings.TrimPrefix(msg, "unknown flag: "))
	}

	if matches := shorthandFlagRE.FindStringSubmatch(msg); len(matches) > 1 {
		return output.ErrUsage("Unknown option: " + matches[1])
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	if strings.Contains(msg, "arg(s), received 0") {
		return output.ErrUsage("ID required")
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsage(msg)
	}

	if strings.HasPrefix(msg, "required flag(s) ") {
		return output.ErrUsage(msg)
	}

	return err
}
