package model

import (
	"fmt"
	"time"
)

// Wire headers shared by the server, the cache proxy and the client.
const (
	HeaderAccessCode = "X-Access-Code"
	HeaderFromCache  = "X-From-Cache"
)

type ListType string

const (
	ListActive   ListType = "active"
	ListInactive ListType = "inactive"
)

func ParseListType(s string) (ListType, error) {
	switch ListType(s) {
	case ListActive, ListInactive:
		return ListType(s), nil
	default:
		return "", fmt.Errorf("invalid list type: %q", s)
	}
}

// Other returns the opposite side.
func (t ListType) Other() ListType {
	if t == ListActive {
		return ListInactive
	}
	return ListActive
}

type Entry struct {
	Category string     `json:"category"`
	Name     string     `json:"name"`
	Number   float64    `json:"number"`
	Unit     string     `json:"unit"`
	Changed  *time.Time `json:"changed,omitempty"`
}

// Matches reports whether both entries carry the same content tuple.
// Changed is not part of the tuple.
func (e Entry) Matches(o Entry) bool {
	return e.Category == o.Category &&
		e.Name == o.Name &&
		e.Number == o.Number &&
		e.Unit == o.Unit
}

type Category struct {
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	Default bool   `json:"default"`
}

type Unit struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

type Meta struct {
	Name    string     `json:"name"`
	Changed *time.Time `json:"changed,omitempty"`
}

type List struct {
	Meta       Meta       `json:"meta"`
	Active     []Entry    `json:"active"`
	Inactive   []Entry    `json:"inactive"`
	Categories []Category `json:"categories"`
	Units      []Unit     `json:"units"`
}

// Side returns the entries of one side. Unknown types yield nil.
func (l *List) Side(t ListType) []Entry {
	switch t {
	case ListActive:
		return l.Active
	case ListInactive:
		return l.Inactive
	}
	return nil
}

func (l *List) SetSide(t ListType, entries []Entry) {
	switch t {
	case ListActive:
		l.Active = entries
	case ListInactive:
		l.Inactive = entries
	}
}

// Normalize replaces nil collections with empty ones so the list always
// serializes with every top-level field present.
func (l *List) Normalize() {
	if l.Active == nil {
		l.Active = []Entry{}
	}
	if l.Inactive == nil {
		l.Inactive = []Entry{}
	}
	if l.Categories == nil {
		l.Categories = []Category{}
	}
	if l.Units == nil {
		l.Units = []Unit{}
	}
}

// Clone returns a deep copy, change stamps included.
func (l List) Clone() List {
	out := l
	out.Meta.Changed = cloneTime(l.Meta.Changed)
	out.Active = cloneEntries(l.Active)
	out.Inactive = cloneEntries(l.Inactive)
	out.Categories = append([]Category(nil), l.Categories...)
	out.Units = append([]Unit(nil), l.Units...)
	out.Normalize()
	return out
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		e.Changed = cloneTime(e.Changed)
		out[i] = e
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// EditRequest is the body of a positional edit.
type EditRequest struct {
	Old Entry `json:"old"`
	New Entry `json:"new"`
}

type CreateListResponse struct {
	ListCode string `json:"listCode"`
}

type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ErrorBody is the JSON error envelope returned by the API.
type ErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
