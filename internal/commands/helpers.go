package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfdevsllc/rocketctl/internal/appctx"
)

// AnnotationOffline marks commands that run without the credential store and
// provider services.
const AnnotationOffline = "rocketctl/offline"

// offline marks cmd as not needing provider services.
func offline(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[AnnotationOffline] = "true"
	return cmd
}

// IsOffline reports whether cmd runs without provider services.
func IsOffline(cmd *cobra.Command) bool {
	return cmd.Annotations[AnnotationOffline] == "true"
}

// connectedApp returns the app with provider services wired.
func connectedApp(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	if err := app.Connect(cmd.Context()); err != nil {
		return nil, err
	}
	return app, nil
}
