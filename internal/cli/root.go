package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"misl/internal/api"
	"misl/internal/config"
	"misl/internal/format"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8081"

type App struct {
	Server     string
	AccessCode string
	LogLevel   string
	PrettyJSON bool

	log *slog.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "misl",
		Short:         "Shared shopping list: server, cache proxy, CLI and TUI",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Run the list server and a caching proxy in one process
  misl serve --addr :8080 --proxy-addr :8081

  # Create a list and remember its code
  misl list create "Groceries" --use

  # Start the interactive TUI
  misl tui
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(cmd.ErrOrStderr(), app.LogLevel)
		if err != nil {
			return writeErr(cmd, err)
		}
		app.log = log
		if err := app.resolveDefaults(); err != nil {
			return writeErr(cmd, err)
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.Server, "server", envOr("MISL_SERVER", ""), "List API base URL (default: config, then "+defaultServer+")")
	cmd.PersistentFlags().StringVar(&app.AccessCode, "code", envOr("MISL_CODE", ""), "List access code (default: the code saved by misl use)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("MISL_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newProxyCmd(app))
	cmd.AddCommand(newTUICmd(app))
	cmd.AddCommand(newUseCmd(app))
	cmd.AddCommand(newInfoCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newItemsCmd(app))
	cmd.AddCommand(newCategoriesCmd(app))
	cmd.AddCommand(newUnitsCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

// resolveDefaults fills server and access code from the config file when
// neither flag nor environment set them.
func (app *App) resolveDefaults() error {
	if app.Server != "" && app.AccessCode != "" {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if app.Server == "" {
		app.Server = cfg.Server
	}
	if app.Server == "" {
		app.Server = defaultServer
	}
	if app.AccessCode == "" {
		app.AccessCode = cfg.AccessCode
	}
	return nil
}

func (app *App) client() (*api.Client, error) {
	if strings.TrimSpace(app.AccessCode) == "" {
		return nil, errNoAccessCode
	}
	return api.New(app.Server, app.AccessCode), nil
}

// anonClient is for requests that need no list, such as info and create.
func (app *App) anonClient() *api.Client {
	return api.New(app.Server, "")
}

func (app *App) logger() *slog.Logger {
	if app.log == nil {
		return slog.Default()
	}
	return app.log
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var errNoAccessCode = errors.New("no access code; run `misl use <code>` or pass --code")
