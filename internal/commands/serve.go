package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wolfdevsllc/rocketctl/internal/events"
	"github.com/wolfdevsllc/rocketctl/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve site operations over HTTP",
		Long: `Run an HTTP server exposing site operations to other services.

Every /v1 route requires an HS256 bearer token signed with server_secret.
The server refuses to start when server_secret is not configured.
With events set to memory, site events are written to the log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := connectedApp(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.Config.ListenAddr
			}

			srv, err := server.New(server.Config{
				Addr:   addr,
				Secret: app.Config.ServerSecret,
				Logger: app.Logger,
			}, app.Auth, app.Sites)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if bus, ok := app.Events.(*events.Bus); ok {
				if err := bus.Log(ctx, app.Logger); err != nil {
					return err
				}
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "listen", "", "Listen address (default from config)")

	return cmd
}
