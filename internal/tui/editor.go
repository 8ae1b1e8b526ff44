package tui

import (
	"errors"
	"strconv"
	"strings"

	"misl/internal/model"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	fieldCategory = iota
	fieldName
	fieldNumber
	fieldUnit
	fieldCount
)

var fieldLabels = [fieldCount]string{"Category", "Name", "Amount", "Unit"}

// editor is the add/edit entry modal.
type editor struct {
	adding bool
	side   model.ListType
	index  int
	old    model.Entry

	inputs      [fieldCount]textinput.Model
	suggestions [fieldCount][]string
	focus       int
	err         string
}

func newEditor(adding bool, side model.ListType, index int, old model.Entry, categories, units []string) *editor {
	ed := &editor{adding: adding, side: side, index: index, old: old}
	values := [fieldCount]string{old.Category, old.Name, formatNumber(old.Number), old.Unit}
	if adding && old.Number == 0 {
		values[fieldNumber] = "1"
	}
	for i := range ed.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 80
		in.SetValue(values[i])
		ed.inputs[i] = in
	}
	ed.suggestions[fieldCategory] = categories
	ed.suggestions[fieldUnit] = units
	for _, i := range []int{fieldCategory, fieldUnit} {
		ed.inputs[i].ShowSuggestions = true
		ed.inputs[i].SetSuggestions(ed.suggestions[i])
	}
	ed.focus = fieldName
	ed.inputs[ed.focus].Focus()
	return ed
}

var errBadAmount = errors.New("amount must be a number")

func (ed *editor) entry() (model.Entry, error) {
	e := model.Entry{
		Category: strings.TrimSpace(ed.inputs[fieldCategory].Value()),
		Name:     strings.TrimSpace(ed.inputs[fieldName].Value()),
		Unit:     strings.TrimSpace(ed.inputs[fieldUnit].Value()),
		Number:   1,
	}
	if raw := strings.TrimSpace(ed.inputs[fieldNumber].Value()); raw != "" {
		n, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return model.Entry{}, errBadAmount
		}
		e.Number = n
	}
	if e.Category == "" || e.Name == "" {
		return model.Entry{}, errors.New("category and name are required")
	}
	return e, nil
}

func (ed *editor) setFocus(i int) tea.Cmd {
	ed.inputs[ed.focus].Blur()
	ed.focus = (i + fieldCount) % fieldCount
	return ed.inputs[ed.focus].Focus()
}

// update returns submit when the user confirmed the form and cancel when
// they dismissed it.
func (ed *editor) update(msg tea.KeyMsg) (submit, cancel bool, cmd tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		return false, true, nil
	case "enter":
		if _, err := ed.entry(); err != nil {
			ed.err = err.Error()
			return false, false, nil
		}
		return true, false, nil
	case "tab":
		if ed.completable() {
			break
		}
		return false, false, ed.setFocus(ed.focus + 1)
	case "down":
		return false, false, ed.setFocus(ed.focus + 1)
	case "shift+tab", "up":
		return false, false, ed.setFocus(ed.focus - 1)
	}
	ed.err = ""
	var c tea.Cmd
	ed.inputs[ed.focus], c = ed.inputs[ed.focus].Update(msg)
	return false, false, c
}

// completable reports whether tab should accept an inline suggestion
// instead of moving to the next field.
func (ed *editor) completable() bool {
	v := ed.inputs[ed.focus].Value()
	if v == "" {
		return false
	}
	for _, s := range ed.suggestions[ed.focus] {
		if s != v && strings.HasPrefix(strings.ToLower(s), strings.ToLower(v)) {
			return true
		}
	}
	return false
}

var (
	editorBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Width(9).Faint(true)
	focusLabel  = lipgloss.NewStyle().Width(9).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	editorTitle = lipgloss.NewStyle().Bold(true)
)

func (ed *editor) view(width int) string {
	inner := width - 8
	if inner < 20 {
		inner = 20
	}
	title := "Edit entry"
	if ed.adding {
		title = "Add entry"
	}
	lines := []string{editorTitle.Render(title), ""}
	for i := range ed.inputs {
		ed.inputs[i].Width = inner - 10
		label := labelStyle.Render(fieldLabels[i])
		if i == ed.focus {
			label = focusLabel.Render(fieldLabels[i])
		}
		lines = append(lines, label+" "+ed.inputs[i].View())
	}
	lines = append(lines, "")
	if ed.err != "" {
		lines = append(lines, errorStyle.Render(ed.err))
	} else {
		lines = append(lines, labelStyle.UnsetWidth().Render("enter save · tab next · esc cancel"))
	}
	return editorBox.Width(inner).Render(strings.Join(lines, "\n"))
}
