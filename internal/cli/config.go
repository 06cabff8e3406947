package cli

import (
	"strings"

	"livetodo/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(app.ConfigPath)
			if path == "" {
				p, err := config.Path()
				if err != nil {
					return writeErr(cmd, err)
				}
				path = p
			}
			return writeOut(cmd, app, map[string]any{
				"data": app.cfg,
				"meta": map[string]any{"path": path},
			})
		},
	}
}
