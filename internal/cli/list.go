package cli

import (
	"strings"

	"misl/internal/config"

	"github.com/spf13/cobra"
)

func newListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show, create or delete lists",
	}
	cmd.AddCommand(newListShowCmd(app))
	cmd.AddCommand(newListCreateCmd(app))
	cmd.AddCommand(newListDeleteCmd(app))
	return cmd
}

func newListShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			got, err := client.GetList(commandContext(cmd))
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": got.List,
				"meta": map[string]any{"cached": got.Cached},
			})
		},
	}
}

func newListCreateCmd(app *App) *cobra.Command {
	var use bool

	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a new list and print its access code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := ""
			if len(args) == 1 {
				title = strings.TrimSpace(args[0])
			}
			code, err := app.anonClient().CreateList(commandContext(cmd), title)
			if err != nil {
				return writeErr(cmd, err)
			}
			if use {
				cfg, err := config.Load()
				if err != nil {
					return writeErr(cmd, err)
				}
				cfg.AccessCode = code
				if cmd.Flags().Changed("server") {
					cfg.Server = app.Server
				}
				if err := config.Save(cfg); err != nil {
					return writeErr(cmd, err)
				}
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"listCode": code, "title": title, "selected": use}})
		},
	}
	cmd.Flags().BoolVar(&use, "use", false, "Select the new list for later commands")
	return cmd
}

func newListDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the current list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := client.DeleteList(commandContext(cmd)); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"deleted": true}})
		},
	}
}
