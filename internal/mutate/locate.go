package mutate

import (
	"strings"

	"misl/internal/model"
)

// Locate confirms which entry a positional request refers to.
//
// The index is tried first. When the entry there does not carry the expected
// tuple (another client moved things around), the side is scanned from the
// start and the first matching entry wins. Entries with identical tuples are
// indistinguishable, so concurrent edits of duplicates may hit a sibling.
func Locate(list *model.List, listType model.ListType, index int, expected model.Entry) (int, error) {
	if listType != model.ListActive && listType != model.ListInactive {
		return -1, ErrInvalidListType
	}
	if strings.TrimSpace(expected.Category) == "" || strings.TrimSpace(expected.Name) == "" {
		return -1, ErrItemDataMismatch
	}
	entries := list.Side(listType)
	if index >= 0 && index < len(entries) && entries[index].Matches(expected) {
		return index, nil
	}
	if i := firstMatch(entries, expected); i >= 0 {
		return i, nil
	}
	return -1, ErrItemNotFound
}

func firstMatch(entries []model.Entry, expected model.Entry) int {
	for i, e := range entries {
		if e.Matches(expected) {
			return i
		}
	}
	return -1
}
