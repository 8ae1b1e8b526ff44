package mutate

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidListType  = errors.New("invalid list type")
	ErrItemNotFound     = errors.New("item not found")
	ErrItemDataMismatch = errors.New("item data does not describe an entry")
)

// Reasons reported by ValidationError.
const (
	ReasonMissingCategory  = "MissingCategory"
	ReasonMissingName      = "MissingName"
	ReasonEmptyName        = "EmptyName"
	ReasonDuplicateName    = "DuplicateName"
	ReasonMultipleDefaults = "MultipleDefaults"
	ReasonInvalidColor     = "InvalidColor"
)

type ValidationError struct {
	Reason string
	Field  string
	Index  int
	Value  string
}

func (e ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s[%d] %q", e.Reason, e.Field, e.Index, e.Value)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Field)
	}
	return e.Reason
}
