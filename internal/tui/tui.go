package tui

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"misl/internal/gesture"
	"misl/internal/localstate"
	"misl/internal/model"
	"misl/internal/syncengine"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// listEngine is the part of *syncengine.Engine the UI drives.
type listEngine interface {
	Start(ctx context.Context) error
	RefreshNow(ctx context.Context) error
	Add(ctx context.Context, listType model.ListType, e model.Entry) error
	Toggle(ctx context.Context, listType model.ListType, index int, expected model.Entry) error
	Delete(ctx context.Context, listType model.ListType, index int, expected model.Entry) error
	Edit(ctx context.Context, listType model.ListType, index int, old, next model.Entry) error
}

// PrefsStore keeps per-device view settings. *localstate.Bolt implements it.
type PrefsStore interface {
	LoadPrefs() (localstate.Prefs, error)
	SavePrefs(localstate.Prefs) error
}

type Options struct {
	AccessCode string
	Transport  syncengine.Transport
	Snapshots  syncengine.SnapshotStore
	Prefs      PrefsStore
	Logger     *slog.Logger

	// LongPress overrides the hold duration; zero means one second.
	LongPress time.Duration
}

func Run(ctx context.Context, opts Options) error {
	if opts.Transport == nil {
		return errors.New("tui: missing transport")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	applyColorProfilePreference()

	feed := newViewFeed()
	eng, err := syncengine.New(syncengine.Options{
		AccessCode: opts.AccessCode,
		Transport:  opts.Transport,
		Renderer:   feed,
		Snapshots:  opts.Snapshots,
		Logger:     opts.Logger,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	rows := &rowTable{}
	driver := gesture.NewDriver(rows.lookup, opts.LongPress)
	defer driver.Close()

	m := newAppModel(ctx, eng, feed, driver, rows, opts.Prefs, opts.Logger)
	_, err = tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// viewFeed hands engine renders to the UI loop. Only the newest view is
// kept; the engine serializes Render calls.
type viewFeed struct {
	ch chan syncengine.View
}

func newViewFeed() *viewFeed {
	return &viewFeed{ch: make(chan syncengine.View, 1)}
}

func (f *viewFeed) Render(v syncengine.View) {
	for {
		select {
		case f.ch <- v:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// Note: termenv.EnvColorProfile respects CLICOLOR/CLICOLOR_FORCE, which is useful for
// non-interactive CLI output but can accidentally disable colors in a TUI. For the TUI,
// we only honor NO_COLOR and otherwise follow the terminal's capabilities.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	profile := termenv.ColorProfile()

	// Category colors are 24-bit; trust COLORTERM/TERM when the detector under-reports.
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	colorterm := strings.ToLower(strings.TrimSpace(os.Getenv("COLORTERM")))
	if strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit") {
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	} else if strings.Contains(term, "256color") && profile != termenv.TrueColor {
		profile = termenv.ANSI256
	}

	lipgloss.SetColorProfile(profile)
}
