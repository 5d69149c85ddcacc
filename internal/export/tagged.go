package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/pkg/tags"
)

// tagged runs the tag-filtered projection.
func (p *projector) tagged(src *entity.Database) (*entity.Database, error) {
	if len(p.opts.Tags) == 0 {
		return nil, errors.New("export: at least one tag is required")
	}
	requested, err := p.vocab.Validate(p.opts.Tags)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	search := p.vocab.Expand(requested)
	p.report.Search = search
	p.log.Info("tags expanded", "tags", strings.Join(search.Tags(), ", "))

	db := src.Clone()
	culled := make(map[string]bool)
	for _, e := range db.List() {
		at := entity.NormalizeAppliesTo(e)
		if !p.vocab.Selects(requested, at.Set()) {
			culled[strings.ToLower(e.Classname)] = true
			_ = db.Remove(e.Classname)
			continue
		}
		entity.StripHelpers(e, entity.HelperAppliesTo)
	}
	p.log.Debug("entities culled", "count", len(culled))

	var errs []error
	for _, e := range db.List() {
		errs = append(errs, narrowEntity(e, search)...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	for _, pf := range p.opts.Polyfills {
		if !tags.Match(search, pf.Tags) {
			continue
		}
		p.log.Debug("applying polyfill", "polyfill", pf.Name)
		p.report.Polyfills = append(p.report.Polyfills, pf.Name)
		for _, e := range db.List() {
			pf.Apply(e)
		}
	}

	if err := collapse(db, culled); err != nil {
		return nil, err
	}
	dropBases(db)
	return db, nil
}

// narrowEntity reduces every key of e to the single alternative selected by
// search, stored under the empty tag set.
func narrowEntity(e *entity.Entity, search tags.Set) []error {
	var errs []error
	for ci, cat := range e.Categories() {
		for _, name := range cat.Names() {
			alts, _ := cat.Get(name)
			def, ok, err := narrow(alts, search)
			if err != nil {
				var amb *AmbiguousKeyError
				if errors.As(err, &amb) {
					amb.Classname, amb.Category, amb.Key = e.Classname, entity.CategoryNames[ci], name
				}
				errs = append(errs, err)
				continue
			}
			if !ok {
				cat.Delete(name)
				continue
			}
			def.Choices = filterChoices(def.Choices, search)
			def.Flags = filterFlags(def.Flags, search)
			cat.Set(name, entity.Universal(def))
		}
	}
	return errs
}

// narrow picks the alternative selected by search. More than one match is
// ambiguous; ok is false when nothing matches.
func narrow(alts entity.Alternatives, search tags.Set) (def entity.Definition, ok bool, err error) {
	var matches []entity.Alternative
	for _, alt := range alts.Sorted() {
		if tags.Match(search, alt.Tags) {
			matches = append(matches, alt)
		}
	}
	switch len(matches) {
	case 0:
		return entity.Definition{}, false, nil
	case 1:
		return matches[0].Def.Clone(), true, nil
	}
	sets := make([]tags.Set, 0, len(matches))
	for _, a := range matches {
		sets = append(sets, a.Tags)
	}
	return entity.Definition{}, false, &AmbiguousKeyError{Matches: sets}
}

func filterChoices(in []entity.Choice, search tags.Set) []entity.Choice {
	if in == nil {
		return nil
	}
	out := make([]entity.Choice, 0, len(in))
	for _, c := range in {
		if tags.Match(search, c.Tags) {
			c.Tags = tags.Set{}
			out = append(out, c)
		}
	}
	return out
}

func filterFlags(in []entity.Flag, search tags.Set) []entity.Flag {
	if in == nil {
		return nil
	}
	out := make([]entity.Flag, 0, len(in))
	for _, f := range in {
		if tags.Match(search, f.Tags) {
			f.Tags = tags.Set{}
			out = append(out, f)
		}
	}
	return out
}
