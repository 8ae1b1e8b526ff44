package syncengine

import (
	"strings"

	"misl/internal/model"
)

// uniqueNonEmpty keeps the first occurrence of each trimmed, non-empty value.
func uniqueNonEmpty(values []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// CategorySuggestions lists configured categories first, then categories
// only used by entries.
func CategorySuggestions(l model.List) []string {
	var names []string
	for _, c := range l.Categories {
		names = append(names, c.Name)
	}
	for _, e := range l.Active {
		names = append(names, e.Category)
	}
	for _, e := range l.Inactive {
		names = append(names, e.Category)
	}
	return uniqueNonEmpty(names)
}

func UnitSuggestions(l model.List) []string {
	var names []string
	for _, u := range l.Units {
		names = append(names, u.Name)
	}
	for _, e := range l.Active {
		names = append(names, e.Unit)
	}
	for _, e := range l.Inactive {
		names = append(names, e.Unit)
	}
	return uniqueNonEmpty(names)
}

func DefaultCategory(l model.List) string {
	for _, c := range l.Categories {
		if c.Default {
			return c.Name
		}
	}
	return ""
}

func DefaultUnit(l model.List) string {
	for _, u := range l.Units {
		if u.Default {
			return u.Name
		}
	}
	return ""
}
