package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"misl/internal/api"
	"misl/internal/model"

	"github.com/spf13/cobra"
)

// entryFlags binds --category/--name/--number/--unit, optionally with a
// prefix such as "new-".
type entryFlags struct {
	category string
	name     string
	number   float64
	unit     string
	prefix   string
}

func (f *entryFlags) register(cmd *cobra.Command, prefix, what string) {
	f.prefix = prefix
	cmd.Flags().StringVar(&f.category, prefix+"category", "", what+" category")
	cmd.Flags().StringVar(&f.name, prefix+"name", "", what+" name")
	cmd.Flags().Float64Var(&f.number, prefix+"number", 1, what+" amount")
	cmd.Flags().StringVar(&f.unit, prefix+"unit", "", what+" unit")
}

func (f *entryFlags) given(cmd *cobra.Command) bool {
	for _, n := range []string{"category", "name", "number", "unit"} {
		if cmd.Flags().Changed(f.prefix + n) {
			return true
		}
	}
	return false
}

func (f *entryFlags) entry() model.Entry {
	return model.Entry{
		Category: strings.TrimSpace(f.category),
		Name:     strings.TrimSpace(f.name),
		Number:   f.number,
		Unit:     strings.TrimSpace(f.unit),
	}
}

// overlay applies only the flags the user set on top of base.
func (f *entryFlags) overlay(cmd *cobra.Command, base model.Entry) model.Entry {
	if cmd.Flags().Changed(f.prefix + "category") {
		base.Category = strings.TrimSpace(f.category)
	}
	if cmd.Flags().Changed(f.prefix + "name") {
		base.Name = strings.TrimSpace(f.name)
	}
	if cmd.Flags().Changed(f.prefix + "number") {
		base.Number = f.number
	}
	if cmd.Flags().Changed(f.prefix + "unit") {
		base.Unit = strings.TrimSpace(f.unit)
	}
	base.Changed = nil
	return base
}

func parseTarget(args []string) (model.ListType, int, error) {
	lt, err := model.ParseListType(strings.ToLower(strings.TrimSpace(args[0])))
	if err != nil {
		return "", 0, err
	}
	index, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("invalid index %q", args[1])
	}
	return lt, index, nil
}

// expectedEntry returns the entry the caller believes sits at index. When no
// entry flags were given, it is read from the current list.
func expectedEntry(ctx context.Context, cmd *cobra.Command, client *api.Client, f *entryFlags, lt model.ListType, index int) (model.Entry, error) {
	if f.given(cmd) {
		e := f.entry()
		if e.Category == "" || e.Name == "" {
			return model.Entry{}, errMissingFlag(f.prefix+"category", f.prefix+"name")
		}
		return e, nil
	}
	got, err := client.GetList(ctx)
	if err != nil {
		return model.Entry{}, err
	}
	side := got.List.Side(lt)
	if index >= len(side) {
		return model.Entry{}, errNotFound("entry", fmt.Sprintf("%s/%d", lt, index))
	}
	e := side[index]
	e.Changed = nil
	return e, nil
}

func newItemsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item", "entries"},
		Short:   "Add, toggle, delete and edit list entries",
		Long: strings.TrimSpace(`
Positional commands take the side (active|inactive) and index shown by
"misl list show". Pass --category/--name (and --number/--unit) to state which
entry you expect there; the server falls back to the first matching entry
when the index moved. Without them the entry is read from the list first.
`),
	}
	cmd.AddCommand(newItemsAddCmd(app))
	cmd.AddCommand(newItemsToggleCmd(app))
	cmd.AddCommand(newItemsDeleteCmd(app))
	cmd.AddCommand(newItemsEditCmd(app))
	return cmd
}

func newItemsAddCmd(app *App) *cobra.Command {
	var f entryFlags
	var inactive bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			e := f.entry()
			if e.Category == "" || e.Name == "" {
				return writeErr(cmd, errMissingFlag("category", "name"))
			}
			lt := model.ListActive
			if inactive {
				lt = model.ListInactive
			}
			if err := client.AddEntry(commandContext(cmd), lt, e); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"listType": lt, "entry": e}})
		},
	}
	f.register(cmd, "", "Entry")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Add to the inactive side")
	return cmd
}

// positionalCmd builds toggle and delete, which share their shape.
func positionalCmd(app *App, use, short string, call func(ctx context.Context, c *api.Client, lt model.ListType, index int, e model.Entry) error) *cobra.Command {
	var f entryFlags

	cmd := &cobra.Command{
		Use:   use + " <active|inactive> <index>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, index, err := parseTarget(args)
			if err != nil {
				return writeErr(cmd, err)
			}
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := commandContext(cmd)
			e, err := expectedEntry(ctx, cmd, client, &f, lt, index)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := call(ctx, client, lt, index, e); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"listType": lt, "index": index, "entry": e}})
		},
	}
	f.register(cmd, "", "Expected")
	return cmd
}

func newItemsToggleCmd(app *App) *cobra.Command {
	return positionalCmd(app, "toggle", "Move an entry to the other side",
		func(ctx context.Context, c *api.Client, lt model.ListType, index int, e model.Entry) error {
			return c.ToggleEntry(ctx, lt, index, e)
		})
}

func newItemsDeleteCmd(app *App) *cobra.Command {
	return positionalCmd(app, "delete", "Delete an entry",
		func(ctx context.Context, c *api.Client, lt model.ListType, index int, e model.Entry) error {
			return c.DeleteEntry(ctx, lt, index, e)
		})
}

func newItemsEditCmd(app *App) *cobra.Command {
	var old entryFlags
	var next entryFlags

	cmd := &cobra.Command{
		Use:   "edit <active|inactive> <index>",
		Short: "Replace an entry's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, index, err := parseTarget(args)
			if err != nil {
				return writeErr(cmd, err)
			}
			if !next.given(cmd) {
				return writeErr(cmd, fmt.Errorf("nothing to change; pass --new-category, --new-name, --new-number or --new-unit"))
			}
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := commandContext(cmd)
			o, err := expectedEntry(ctx, cmd, client, &old, lt, index)
			if err != nil {
				return writeErr(cmd, err)
			}
			n := next.overlay(cmd, o)
			if err := client.EditEntry(ctx, lt, index, o, n); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"listType": lt, "index": index, "old": o, "new": n}})
		},
	}
	old.register(cmd, "", "Expected")
	next.register(cmd, "new-", "Replacement")
	return cmd
}
