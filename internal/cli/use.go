package cli

import (
	"fmt"
	"strings"

	"misl/internal/config"
	"misl/internal/store"

	"github.com/spf13/cobra"
)

func newUseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <access-code>",
		Short: "Select the list other commands act on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.TrimSpace(args[0])
			if !store.ValidAccessCode(code) {
				return writeErr(cmd, fmt.Errorf("invalid access code %q: expected 4-12 letters or digits", code))
			}
			cfg, err := config.Load()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg.AccessCode = strings.ToLower(code)
			if cmd.Flags().Changed("server") {
				cfg.Server = app.Server
			}
			if err := config.Save(cfg); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": cfg})
		},
	}
	return cmd
}

func newInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the server name and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := app.anonClient().Info(commandContext(cmd))
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": info, "meta": map[string]any{"server": app.Server}})
		},
	}
}
