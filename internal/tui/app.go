package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"misl/internal/gesture"
	"misl/internal/localstate"
	"misl/internal/model"
	"misl/internal/syncengine"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	headerHeight = 1
	footerHeight = 1
)

type (
	viewMsg    struct{ view syncengine.View }
	intentMsg  struct{ intent gesture.Intent }
	startedMsg struct{ err error }
	doneMsg    struct {
		op  string
		err error
	}
)

type appModel struct {
	ctx    context.Context
	engine listEngine
	feed   *viewFeed
	driver *gesture.Driver
	rows   *rowTable
	prefs  PrefsStore
	log    *slog.Logger
	keys   keyMap

	view    syncengine.View
	loaded  bool
	spacing int
	lines   []line

	width  int
	height int
	offset int
	cursor int

	editor *editor
	status string
}

func newAppModel(ctx context.Context, eng listEngine, feed *viewFeed, driver *gesture.Driver, rows *rowTable, prefs PrefsStore, log *slog.Logger) appModel {
	m := appModel{
		ctx:    ctx,
		engine: eng,
		feed:   feed,
		driver: driver,
		rows:   rows,
		prefs:  prefs,
		log:    log,
		keys:   defaultKeyMap(),
		width:  80,
		height: 24,
	}
	if prefs != nil {
		if p, err := prefs.LoadPrefs(); err == nil {
			m.spacing = clampSpacing(p.RowSpacing)
		}
	}
	m.relayout()
	return m
}

func (m appModel) Init() tea.Cmd {
	eng, ctx := m.engine, m.ctx
	return tea.Batch(
		func() tea.Msg { return startedMsg{err: eng.Start(ctx)} },
		m.waitForView(),
		m.waitForIntent(),
	)
}

func (m appModel) waitForView() tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		return viewMsg{view: <-feed.ch}
	}
}

func (m appModel) waitForIntent() tea.Cmd {
	if m.driver == nil {
		return nil
	}
	intents := m.driver.Intents()
	return func() tea.Msg {
		in, ok := <-intents
		if !ok {
			return nil
		}
		return intentMsg{intent: in}
	}
}

func (m appModel) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{op: op, err: fn(ctx)}
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.relayout()
		return m, nil

	case viewMsg:
		m.view = msg.view
		m.loaded = true
		m.rows.set(msg.view.List)
		m.clampCursor()
		m.relayout()
		return m, m.waitForView()

	case startedMsg:
		if msg.err != nil {
			m.status = describeErr(msg.err)
		}
		return m, nil

	case doneMsg:
		if msg.err != nil {
			m.log.Debug("action failed", "op", msg.op, "err", msg.err)
			m.status = describeErr(msg.err)
		} else if msg.op == "refresh" {
			m.status = ""
		}
		return m, nil

	case intentMsg:
		cmd := m.handleIntent(msg.intent)
		return m, tea.Batch(cmd, m.waitForIntent())

	case tea.MouseMsg:
		cmd := m.handleMouse(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.editor != nil {
			return m.updateEditor(msg)
		}
		return m.handleKey(msg)

	default:
		// Cursor blink and similar input-internal messages.
		if m.editor != nil {
			i := m.editor.focus
			var cmd tea.Cmd
			m.editor.inputs[i], cmd = m.editor.inputs[i].Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *appModel) handleIntent(in gesture.Intent) tea.Cmd {
	if in.Kind != gesture.IntentRefresh && (m.view.Offline || m.editor != nil) {
		return nil
	}
	eng := m.engine
	switch in.Kind {
	case gesture.IntentToggle:
		return m.run("toggle", func(ctx context.Context) error {
			return eng.Toggle(ctx, in.Side, in.Index, in.Entry)
		})
	case gesture.IntentDelete:
		return m.run("delete", func(ctx context.Context) error {
			return eng.Delete(ctx, in.Side, in.Index, in.Entry)
		})
	case gesture.IntentEdit:
		m.editor = newEditor(false, in.Side, in.Index, in.Entry, m.view.Categories, m.view.Units)
		return nil
	case gesture.IntentRefresh:
		return m.run("refresh", eng.RefreshNow)
	}
	return nil
}

func (m *appModel) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if m.editor != nil {
		return nil
	}
	ev := tea.MouseEvent(msg)
	if ev.IsWheel() {
		switch ev.Button {
		case tea.MouseButtonWheelUp:
			m.scroll(-1)
		case tea.MouseButtonWheelDown:
			m.scroll(1)
		}
		m.feedGesture(gesture.Scroll, gesture.Target{})
		return nil
	}
	// Rows are read-only while offline.
	if m.view.Offline {
		return nil
	}
	target := m.targetAt(ev.Y)
	switch ev.Action {
	case tea.MouseActionPress:
		if ev.Button == tea.MouseButtonLeft {
			m.feedGesture(gesture.Press, target)
		}
	case tea.MouseActionMotion:
		m.feedGesture(gesture.Move, target)
	case tea.MouseActionRelease:
		m.feedGesture(gesture.Release, target)
	}
	return nil
}

func (m *appModel) feedGesture(kind gesture.Kind, target gesture.Target) {
	if m.driver != nil {
		m.driver.Handle(gesture.MouseEvent(kind, target))
	}
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit
	case key.Matches(msg, k.Up):
		m.moveCursor(-1)
	case key.Matches(msg, k.Down):
		m.moveCursor(1)
	case key.Matches(msg, k.Refresh):
		m.status = "refreshing…"
		return m, m.run("refresh", m.engine.RefreshNow)
	case key.Matches(msg, k.Zoom):
		m.spacing = (m.spacing + 1) % (maxRowSpacing + 1)
		m.relayout()
		m.ensureVisible()
		return m, m.savePrefs()
	case key.Matches(msg, k.Add):
		if m.view.Offline {
			m.status = describeErr(syncengine.ErrOffline)
			return m, nil
		}
		seed := model.Entry{
			Category: syncengine.DefaultCategory(m.view.List),
			Unit:     syncengine.DefaultUnit(m.view.List),
		}
		m.editor = newEditor(true, model.ListActive, -1, seed, m.view.Categories, m.view.Units)
	case key.Matches(msg, k.Toggle), key.Matches(msg, k.Edit), key.Matches(msg, k.Delete):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		e, ok := m.rows.lookup(t.Side, t.Index)
		if !ok {
			return m, nil
		}
		kind := gesture.IntentToggle
		switch {
		case key.Matches(msg, k.Edit):
			kind = gesture.IntentEdit
		case key.Matches(msg, k.Delete):
			kind = gesture.IntentDelete
		}
		if m.view.Offline {
			m.status = describeErr(syncengine.ErrOffline)
			return m, nil
		}
		cmd := m.handleIntent(gesture.Intent{Kind: kind, Side: t.Side, Index: t.Index, Entry: e})
		return m, cmd
	}
	return m, nil
}

func (m appModel) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ed := m.editor
	submit, cancel, cmd := ed.update(msg)
	switch {
	case cancel:
		m.editor = nil
		return m, nil
	case submit:
		next, err := ed.entry()
		if err != nil {
			ed.err = err.Error()
			return m, nil
		}
		m.editor = nil
		eng := m.engine
		if ed.adding {
			return m, m.run("add", func(ctx context.Context) error {
				return eng.Add(ctx, model.ListActive, next)
			})
		}
		return m, m.run("edit", func(ctx context.Context) error {
			return eng.Edit(ctx, ed.side, ed.index, ed.old, next)
		})
	}
	return m, cmd
}

func (m appModel) savePrefs() tea.Cmd {
	if m.prefs == nil {
		return nil
	}
	prefs, spacing := m.prefs, m.spacing
	return func() tea.Msg {
		return doneMsg{op: "prefs", err: prefs.SavePrefs(localstate.Prefs{RowSpacing: spacing})}
	}
}

func clampSpacing(n int) int {
	return min(max(n, 0), maxRowSpacing)
}

func describeErr(err error) string {
	switch {
	case errors.Is(err, syncengine.ErrOffline):
		return "offline: press r to retry"
	case errors.Is(err, context.Canceled):
		return ""
	}
	return err.Error()
}

func (m *appModel) bodyHeight() int {
	return max(m.height-headerHeight-footerHeight, 1)
}

func (m *appModel) rowCount() int {
	return len(m.view.List.Active) + len(m.view.List.Inactive)
}

func (m *appModel) selected() (gesture.Target, bool) {
	n := len(m.view.List.Active)
	switch {
	case m.rowCount() == 0:
		return gesture.Target{}, false
	case m.cursor < n:
		return gesture.At(model.ListActive, m.cursor), true
	default:
		return gesture.At(model.ListInactive, m.cursor-n), true
	}
}

func (m *appModel) clampCursor() {
	m.cursor = min(max(m.cursor, 0), max(m.rowCount()-1, 0))
}

func (m *appModel) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
	m.relayout()
	m.ensureVisible()
}

func (m *appModel) relayout() {
	sel, _ := m.selected()
	m.lines = buildLines(m.view.List, m.width, m.spacing, sel)
	m.scroll(0)
}

func (m *appModel) scroll(delta int) {
	maxOffset := max(len(m.lines)-m.bodyHeight(), 0)
	m.offset = min(max(m.offset+delta, 0), maxOffset)
}

func (m *appModel) ensureVisible() {
	sel, ok := m.selected()
	if !ok {
		return
	}
	for i, l := range m.lines {
		if !l.target.Same(sel) {
			continue
		}
		if i < m.offset {
			m.offset = i
		} else if i >= m.offset+m.bodyHeight() {
			m.offset = i - m.bodyHeight() + 1 + m.spacing
		}
		m.scroll(0)
		return
	}
}

// targetAt maps a screen row to the list row drawn there.
func (m *appModel) targetAt(y int) gesture.Target {
	if y < headerHeight || y >= headerHeight+m.bodyHeight() {
		return gesture.Target{}
	}
	i := m.offset + y - headerHeight
	if i < 0 || i >= len(m.lines) {
		return gesture.Target{}
	}
	return m.lines[i].target
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	offlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	footerStyle  = lipgloss.NewStyle().Faint(true)
)

func (m appModel) header() string {
	title := strings.TrimSpace(m.view.List.Meta.Name)
	if title == "" {
		title = "misl"
	}
	parts := []string{titleStyle.Render(title)}
	switch {
	case !m.loaded:
		parts = append(parts, footerStyle.Render("loading…"))
	case m.view.Offline && m.view.Cached:
		parts = append(parts, offlineStyle.Render("offline (cached)"))
	case m.view.Offline:
		parts = append(parts, offlineStyle.Render("offline"))
	}
	if m.view.Pending > 0 {
		parts = append(parts, footerStyle.Render(fmt.Sprintf("syncing %d", m.view.Pending)))
	}
	return strings.Join(parts, "  ")
}

func (m appModel) View() string {
	var b strings.Builder
	b.WriteString(padOrCutANSI(m.header(), m.width))
	b.WriteString("\n")

	bodyH := m.bodyHeight()
	if m.editor != nil {
		b.WriteString(lipgloss.Place(m.width, bodyH, lipgloss.Center, lipgloss.Center, m.editor.view(m.width)))
	} else {
		for i := 0; i < bodyH; i++ {
			text := ""
			if j := m.offset + i; j < len(m.lines) {
				text = m.lines[j].text
			}
			b.WriteString(padOrCutANSI(text, m.width))
			b.WriteString("\n")
		}
	}
	if m.editor != nil {
		b.WriteString("\n")
	}

	footer := m.status
	if footer == "" {
		footer = m.keys.helpLine()
	}
	b.WriteString(footerStyle.Render(truncateToWidth(footer, m.width)))
	return b.String()
}
