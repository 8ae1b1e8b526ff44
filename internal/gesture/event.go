// Package gesture turns raw pointer input over list rows into list intents.
//
// Touch and mouse input are normalized into Event at the boundary; the
// controller never sees device-specific types.
package gesture

import (
	"fmt"

	"misl/internal/model"
)

type Family int

const (
	FamilyUnknown Family = iota
	FamilyTouch
	FamilyMouse
)

func (f Family) String() string {
	switch f {
	case FamilyTouch:
		return "touch"
	case FamilyMouse:
		return "mouse"
	}
	return "unknown"
}

type Kind int

const (
	Press Kind = iota + 1
	Move
	Release
	Scroll
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "press"
	case Move:
		return "move"
	case Release:
		return "release"
	case Scroll:
		return "scroll"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Target is the row under the pointer. Valid is false outside any row.
type Target struct {
	Side  model.ListType
	Index int
	Valid bool
}

func At(side model.ListType, index int) Target {
	return Target{Side: side, Index: index, Valid: true}
}

func (t Target) Same(o Target) bool {
	return t.Valid && o.Valid && t.Side == o.Side && t.Index == o.Index
}

type Event struct {
	Family Family
	Kind   Kind
	Target Target
}

func TouchEvent(kind Kind, target Target) Event {
	return Event{Family: FamilyTouch, Kind: kind, Target: target}
}

func MouseEvent(kind Kind, target Target) Event {
	return Event{Family: FamilyMouse, Kind: kind, Target: target}
}

type IntentKind int

const (
	IntentToggle IntentKind = iota + 1
	IntentEdit
	IntentDelete
	IntentRefresh
)

func (k IntentKind) String() string {
	switch k {
	case IntentToggle:
		return "toggle"
	case IntentEdit:
		return "edit"
	case IntentDelete:
		return "delete"
	case IntentRefresh:
		return "refresh"
	}
	return fmt.Sprintf("intent(%d)", int(k))
}

// Intent is what the user meant. Entry is the row content captured when the
// press started; Refresh intents carry no entry.
type Intent struct {
	Kind  IntentKind
	Side  model.ListType
	Index int
	Entry model.Entry
}
