package cli

import (
	"misl/internal/config"
	"misl/internal/localstate"
	"misl/internal/tui"

	"github.com/spf13/cobra"
)

func newTUICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive list view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return writeErr(cmd, err)
			}
			statePath, err := cfg.StatePath()
			if err != nil {
				return writeErr(cmd, err)
			}
			state, err := localstate.Open(statePath)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer state.Close()

			ctx, stop := signalContext(cmd)
			defer stop()
			err = tui.Run(ctx, tui.Options{
				AccessCode: app.AccessCode,
				Transport:  client,
				Snapshots:  state,
				Prefs:      state,
				Logger:     app.logger().With("component", "tui"),
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
}
