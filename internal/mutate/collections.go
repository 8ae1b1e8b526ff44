package mutate

import (
	"regexp"
	"strings"

	"misl/internal/model"
)

var colorRe = regexp.MustCompile(`^#([0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)

// ReplaceCategories swaps the whole category collection. The first violation
// aborts and leaves the list untouched.
func ReplaceCategories(list *model.List, cats []model.Category) error {
	seen := map[string]bool{}
	defaults := 0
	for i, c := range cats {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return ValidationError{Reason: ReasonEmptyName, Field: "categories", Index: i}
		}
		if seen[name] {
			return ValidationError{Reason: ReasonDuplicateName, Field: "categories", Index: i, Value: name}
		}
		seen[name] = true
		if c.Color != "" && !colorRe.MatchString(c.Color) {
			return ValidationError{Reason: ReasonInvalidColor, Field: "categories", Index: i, Value: c.Color}
		}
		if c.Default {
			defaults++
			if defaults > 1 {
				return ValidationError{Reason: ReasonMultipleDefaults, Field: "categories", Index: i, Value: name}
			}
		}
	}
	out := make([]model.Category, len(cats))
	for i, c := range cats {
		c.Name = strings.TrimSpace(c.Name)
		out[i] = c
	}
	list.Categories = out
	return nil
}

func ReplaceUnits(list *model.List, units []model.Unit) error {
	seen := map[string]bool{}
	defaults := 0
	for i, u := range units {
		name := strings.TrimSpace(u.Name)
		if name == "" {
			return ValidationError{Reason: ReasonEmptyName, Field: "units", Index: i}
		}
		if seen[name] {
			return ValidationError{Reason: ReasonDuplicateName, Field: "units", Index: i, Value: name}
		}
		seen[name] = true
		if u.Default {
			defaults++
			if defaults > 1 {
				return ValidationError{Reason: ReasonMultipleDefaults, Field: "units", Index: i, Value: name}
			}
		}
	}
	out := make([]model.Unit, len(units))
	for i, u := range units {
		u.Name = strings.TrimSpace(u.Name)
		out[i] = u
	}
	list.Units = out
	return nil
}
