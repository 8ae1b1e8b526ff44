package tui

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"misl/internal/gesture"
	"misl/internal/model"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

const maxRowSpacing = 2

// rowTable is the list the gesture driver hit-tests against. The driver
// reads it from timer goroutines.
type rowTable struct {
	mu   sync.RWMutex
	list model.List
}

func (t *rowTable) set(l model.List) {
	t.mu.Lock()
	t.list = l
	t.mu.Unlock()
}

func (t *rowTable) lookup(side model.ListType, index int) (model.Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := t.list.Side(side)
	if index < 0 || index >= len(entries) {
		return model.Entry{}, false
	}
	return entries[index], true
}

// line is one screen row of the list body. Rows taller than one line repeat
// their target so the whole block is clickable.
type line struct {
	text   string
	target gesture.Target
}

var (
	sectionStyle  = lipgloss.NewStyle().Bold(true)
	emptyStyle    = lipgloss.NewStyle().Faint(true)
	inactiveStyle = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	categoryStyle = lipgloss.NewStyle().Faint(true)
)

func buildLines(l model.List, width, spacing int, selected gesture.Target) []line {
	if spacing < 0 {
		spacing = 0
	}
	colors := categoryColors(l.Categories)
	var out []line
	section := func(title string, side model.ListType) {
		entries := l.Side(side)
		out = append(out, line{text: sectionStyle.Render(fmt.Sprintf("%s (%d)", title, len(entries)))})
		if len(entries) == 0 {
			out = append(out, line{text: emptyStyle.Render("  (empty)")})
			return
		}
		for i, e := range entries {
			target := gesture.At(side, i)
			text := renderRow(e, side, width, colors, target.Same(selected))
			out = append(out, line{text: text, target: target})
			for j := 0; j < spacing; j++ {
				out = append(out, line{target: target})
			}
		}
	}
	section("To buy", model.ListActive)
	out = append(out, line{})
	section("In basket", model.ListInactive)
	return out
}

func renderRow(e model.Entry, side model.ListType, width int, colors map[string]string, selected bool) string {
	swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(colorFor(e.Category, colors))).Render("▌")
	left := strings.TrimSpace(fmt.Sprintf("%s %s %s", formatNumber(e.Number), e.Unit, e.Name))
	left = strings.Join(strings.Fields(left), " ")
	right := e.Category

	avail := width - 2
	if avail < 1 {
		avail = 1
	}
	leftW := xansi.StringWidth(left)
	rightW := xansi.StringWidth(right)
	gap := avail - leftW - rightW
	if gap < 1 {
		// Name wins over category when space runs out.
		right = ""
		rightW = 0
		gap = avail - leftW
		if gap < 0 {
			left = truncateToWidth(left, avail)
			gap = 0
		}
	}
	body := left + strings.Repeat(" ", gap)
	if side == model.ListInactive {
		body = inactiveStyle.Render(left) + strings.Repeat(" ", gap)
	}
	if right != "" {
		body += categoryStyle.Render(right)
	}
	if selected {
		body = selectedStyle.Render(xansi.Strip(body))
	}
	return swatch + " " + body
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func truncateToWidth(s string, w int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if w <= 0 {
		return ""
	}
	if xansi.StringWidth(s) <= w {
		return s
	}
	if w <= 1 {
		return "…"
	}
	return xansi.Cut(s, 0, w-1) + "…"
}

func padOrCutANSI(s string, w int) string {
	cur := xansi.StringWidth(s)
	switch {
	case cur < w:
		return s + strings.Repeat(" ", w-cur)
	case cur > w:
		return xansi.Cut(s, 0, w) + "\x1b[0m"
	default:
		return s
	}
}

func categoryColors(cats []model.Category) map[string]string {
	out := make(map[string]string, len(cats))
	for _, c := range cats {
		if c.Color != "" {
			out[c.Name] = c.Color
		}
	}
	return out
}

func colorFor(category string, configured map[string]string) string {
	if c, ok := configured[category]; ok && len(c) >= 7 && c[0] == '#' {
		return c[:7]
	}
	return hashColor(category)
}

// hashColor derives a stable color from the base64 form of the category
// name, three interleaved 31x string hashes, one per channel.
func hashColor(category string) string {
	input := base64.StdEncoding.EncodeToString([]byte(category))
	var rgb [3]int64
	for i := 0; i < len(input); i++ {
		n := i % 3
		shifted := int64(int32(uint32(int32(rgb[n])) << 5))
		rgb[n] = shifted - rgb[n] + int64(input[i])
	}
	for i := range rgb {
		rgb[i] %= 256
		if rgb[i] < 0 {
			rgb[i] = 0
		}
	}
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}
