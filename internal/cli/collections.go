package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"misl/internal/model"

	"github.com/spf13/cobra"
)

func readJSONArg(cmd *cobra.Command, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func newCategoriesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage the category collection",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "set <file|->",
		Short:   "Replace all categories with a JSON array",
		Example: `echo '[{"name":"fruit","color":"#33aa33","default":true}]' | misl categories set -`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cats []model.Category
			if err := readJSONArg(cmd, args[0], &cats); err != nil {
				return writeErr(cmd, err)
			}
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := client.ReplaceCategories(commandContext(cmd), cats); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": cats})
		},
	})
	return cmd
}

func newUnitsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units",
		Short: "Manage the unit collection",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "set <file|->",
		Short:   "Replace all units with a JSON array",
		Example: `echo '[{"name":"kg"},{"name":"pcs","default":true}]' | misl units set -`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var units []model.Unit
			if err := readJSONArg(cmd, args[0], &units); err != nil {
				return writeErr(cmd, err)
			}
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := client.ReplaceUnits(commandContext(cmd), units); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": units})
		},
	})
	return cmd
}
