// Package merge folds a freshly authored, engine-specific entity into the
// shared database entity, widening or narrowing tagged alternatives instead
// of overwriting them.
package merge

import (
	"slices"
	"strings"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/pkg/tags"
)

// DescSeparator joins descriptions contributed by different engines.
const DescSeparator = "|||"

// Changes summarises what [MergeEntity] did.
type Changes struct {
	// Widened counts alternatives whose tag set gained the engine.
	Widened int

	// Added counts alternatives created for values not seen before.
	Added int

	// Negated counts keys marked as absent from the engine.
	Negated int

	// Collisions lists "category.key{tags}" entries where two alternatives
	// landed on the same tag set with different values.
	Collisions []string
}

// MergeEntity merges upd, as authored for engine, into a copy of old and
// returns the copy. Neither argument is modified.
//
// Descriptions, bases and helpers are unioned. For each key of upd an equal
// existing alternative is widened to engine, otherwise a new alternative
// tagged engine is added. Keys of old missing from upd are negated for
// engine. The result carries one AppliesTo helper that lists engine.
func MergeEntity(old, upd *entity.Entity, engine string) (*entity.Entity, Changes) {
	m := old.Clone()
	var ch Changes

	if !strings.Contains(m.Desc, upd.Desc) {
		m.Desc += DescSeparator + upd.Desc
	}

	for _, b := range upd.Bases {
		if !slices.Contains(m.Bases, b) {
			m.Bases = append(m.Bases, b)
		}
	}

	for _, h := range upd.Helpers {
		if !slices.ContainsFunc(m.Helpers, h.Equal) {
			m.Helpers = append(m.Helpers, entity.Helper{Kind: h.Kind, Args: slices.Clone(h.Args)})
		}
	}

	oldCats, newCats := m.Categories(), upd.Categories()
	for i, cat := range oldCats {
		mergeCategory(cat, newCats[i], engine, entity.CategoryNames[i], &ch)
	}

	entity.NormalizeAppliesTo(m).Add(engine)
	return m, ch
}

func mergeCategory(dst, src *entity.Category, engine, catName string, ch *Changes) {
	for _, name := range src.Names() {
		newAlts, _ := src.Get(name)
		oldAlts, ok := dst.Get(name)
		if !ok {
			next := make(entity.Alternatives, len(newAlts))
			for _, alt := range newAlts.Sorted() {
				next[tags.Toggle(alt.Tags, engine)] = alt.Def.Clone()
				ch.Added++
			}
			dst.Set(name, next)
			continue
		}
		dst.Set(name, widen(oldAlts, newAlts, engine, catName+"."+name, ch))
	}

	for _, name := range dst.Names() {
		if src.Has(name) {
			continue
		}
		oldAlts, _ := dst.Get(name)
		next := make(entity.Alternatives, len(oldAlts))
		for _, alt := range oldAlts.Sorted() {
			ts := tags.Toggle(alt.Tags, "!"+engine)
			if prev, dup := next[ts]; dup && !prev.Equal(alt.Def) {
				ch.Collisions = append(ch.Collisions, catName+"."+name+ts.String())
				continue
			}
			next[ts] = alt.Def
		}
		dst.Set(name, next)
		ch.Negated++
	}
}

// widen builds the replacement alternatives for one key present in both
// entities.
func widen(oldAlts, newAlts entity.Alternatives, engine, where string, ch *Changes) entity.Alternatives {
	next := oldAlts.Clone()
	oldSorted := oldAlts.Sorted()

	put := func(ts tags.Set, def entity.Definition) {
		if prev, dup := next[ts]; dup && !prev.Equal(def) {
			ch.Collisions = append(ch.Collisions, where+ts.String())
		}
		next[ts] = def.Clone()
	}

	for _, alt := range newAlts.Sorted() {
		i := slices.IndexFunc(oldSorted, func(o entity.Alternative) bool { return o.Def.Equal(alt.Def) })
		switch {
		case i < 0:
			put(tags.Toggle(alt.Tags, engine), alt.Def)
			ch.Added++
		case oldSorted[i].Tags.IsEmpty():
			// Already universal.
		default:
			from := oldSorted[i].Tags
			to := tags.Toggle(from, engine)
			if to == from {
				continue
			}
			delete(next, from)
			put(to, alt.Def)
			ch.Widened++
		}
	}
	return next
}
