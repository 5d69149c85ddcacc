package entity

import (
	"slices"
	"strings"

	"github.com/MrWong99/entunify/pkg/tags"
)

// AppliesTo is a handle on the single canonical AppliesTo helper of an
// entity, as produced by [NormalizeAppliesTo].
type AppliesTo struct {
	ent *Entity
	idx int
}

// NormalizeAppliesTo collects the arguments of every AppliesTo helper on e,
// removes them all and inserts one helper holding the upper-cased, sorted,
// de-duplicated union at the position of the first one found (or at the front
// when there was none).
func NormalizeAppliesTo(e *Entity) *AppliesTo {
	pos := -1
	var args []string
	kept := make([]Helper, 0, len(e.Helpers)+1)
	for _, h := range e.Helpers {
		if h.Kind != HelperAppliesTo {
			kept = append(kept, h)
			continue
		}
		if pos == -1 {
			pos = len(kept)
		}
		for _, a := range h.Args {
			args = append(args, strings.ToUpper(strings.TrimSpace(a)))
		}
	}
	if pos == -1 {
		pos = 0
	}
	slices.Sort(args)
	args = slices.Compact(args)
	args = slices.DeleteFunc(args, func(a string) bool { return a == "" })

	e.Helpers = slices.Insert(kept, pos, Helper{Kind: HelperAppliesTo, Args: args})
	return &AppliesTo{ent: e, idx: pos}
}

// Tags returns the release arguments.
func (a *AppliesTo) Tags() []string {
	return slices.Clone(a.ent.Helpers[a.idx].Args)
}

// Set returns the arguments as a tag set.
func (a *AppliesTo) Set() tags.Set {
	return tags.NewSet(a.ent.Helpers[a.idx].Args...)
}

// Has reports whether tag is listed.
func (a *AppliesTo) Has(tag string) bool {
	return slices.Contains(a.ent.Helpers[a.idx].Args, strings.ToUpper(tag))
}

// Add lists tag, keeping the arguments sorted and unique.
func (a *AppliesTo) Add(tag string) {
	tag = strings.ToUpper(tag)
	args := a.ent.Helpers[a.idx].Args
	i, found := slices.BinarySearch(args, tag)
	if found {
		return
	}
	a.ent.Helpers[a.idx].Args = slices.Insert(args, i, tag)
}

// StripHelpers removes every helper whose kind is listed.
func StripHelpers(e *Entity, kinds ...HelperKind) {
	e.Helpers = slices.DeleteFunc(e.Helpers, func(h Helper) bool {
		return slices.Contains(kinds, h.Kind)
	})
}
