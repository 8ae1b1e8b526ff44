package mutate

import (
	"errors"
	"slices"
	"strings"
	"time"

	"misl/internal/model"
)

// Result describes the entry a mutation touched and where it ended up.
type Result struct {
	Entry     model.Entry
	From      model.ListType
	To        model.ListType
	Index     int
	Recovered bool
}

func ValidateEntry(e model.Entry) error {
	if strings.TrimSpace(e.Category) == "" {
		return ValidationError{Reason: ReasonMissingCategory, Field: "category"}
	}
	if strings.TrimSpace(e.Name) == "" {
		return ValidationError{Reason: ReasonMissingName, Field: "name"}
	}
	return nil
}

func stamp(e model.Entry, now time.Time) model.Entry {
	t := now.UTC()
	e.Changed = &t
	return e
}

// Add appends a new entry. No positional check applies.
func Add(list *model.List, listType model.ListType, e model.Entry, now time.Time) (Result, error) {
	if listType != model.ListActive && listType != model.ListInactive {
		return Result{}, ErrInvalidListType
	}
	if err := ValidateEntry(e); err != nil {
		return Result{}, err
	}
	e = stamp(e, now)
	side := append(list.Side(listType), e)
	list.SetSide(listType, side)
	return Result{Entry: e, From: listType, To: listType, Index: len(side) - 1}, nil
}

// Toggle moves the confirmed entry to the end of the other side. When the
// entry is gone from listType but the other side carries the tuple, another
// client toggled it first; that entry is toggled back.
func Toggle(list *model.List, listType model.ListType, index int, expected model.Entry, now time.Time) (Result, error) {
	side := listType
	at, err := Locate(list, listType, index, expected)
	if errors.Is(err, ErrItemNotFound) {
		if i := firstMatch(list.Side(listType.Other()), expected); i >= 0 {
			side, at, err = listType.Other(), i, nil
		}
	}
	if err != nil {
		return Result{}, err
	}
	from := list.Side(side)
	e := stamp(from[at], now)
	list.SetSide(side, slices.Delete(from, at, at+1))

	other := side.Other()
	to := append(list.Side(other), e)
	list.SetSide(other, to)
	return Result{Entry: e, From: side, To: other, Index: len(to) - 1, Recovered: side != listType || at != index}, nil
}

func Delete(list *model.List, listType model.ListType, index int, expected model.Entry) (Result, error) {
	at, err := Locate(list, listType, index, expected)
	if err != nil {
		return Result{}, err
	}
	from := list.Side(listType)
	e := from[at]
	list.SetSide(listType, slices.Delete(from, at, at+1))
	return Result{Entry: e, From: listType, To: listType, Index: at, Recovered: at != index}, nil
}

// Edit replaces the entry matching old with next. next is validated before
// the list is searched.
func Edit(list *model.List, listType model.ListType, index int, old, next model.Entry, now time.Time) (Result, error) {
	if listType != model.ListActive && listType != model.ListInactive {
		return Result{}, ErrInvalidListType
	}
	if err := ValidateEntry(next); err != nil {
		return Result{}, err
	}
	at, err := Locate(list, listType, index, old)
	if err != nil {
		return Result{}, err
	}
	next = stamp(next, now)
	list.Side(listType)[at] = next
	return Result{Entry: next, From: listType, To: listType, Index: at, Recovered: at != index}, nil
}
