package export

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/pkg/tags"
)

var (
	engineOnly     = tags.NewSet(tags.Engine)
	engineRequired = tags.NewSet("+" + tags.Engine)
)

// engine runs the machine-oriented projection.
func (p *projector) engine(src *entity.Database) (*entity.Database, error) {
	if len(p.opts.Tags) > 0 {
		p.log.Warn("tags are ignored in engine mode", "tags", strings.Join(p.opts.Tags, ", "))
	}
	p.report.Search = engineOnly

	db := src.Clone()
	if err := collapse(db, nil); err != nil {
		return nil, err
	}
	dropBases(db)

	var errs []error
	for _, e := range db.List() {
		entity.StripHelpers(e, entity.HelperAppliesTo, entity.HelperOrderBy)
		for ci, cat := range e.Categories() {
			for _, name := range cat.Names() {
				alts, _ := cat.Get(name)
				def, ok, err := p.resolveEngine(e.Classname, name, alts)
				if err != nil {
					var ec *EngineChoicesError
					if errors.As(err, &ec) {
						ec.Category = entity.CategoryNames[ci]
					}
					errs = append(errs, err)
					continue
				}
				if !ok {
					cat.Delete(name)
					continue
				}
				cat.Set(name, entity.Universal(def))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return db, nil
}

// resolveEngine picks the one definition used for a key. A lone alternative
// is always used; otherwise an exact ENGINE entry wins, then the smallest
// tag set not excluded from the engine. ok is false when every alternative
// is excluded.
func (p *projector) resolveEngine(classname, key string, alts entity.Alternatives) (def entity.Definition, ok bool, err error) {
	sorted := alts.Sorted()
	i := slices.IndexFunc(sorted, func(a entity.Alternative) bool {
		return a.Tags == engineOnly || a.Tags == engineRequired
	})

	switch {
	case len(sorted) == 1:
		def = sorted[0].Def.Clone()
	case i >= 0:
		def = sorted[i].Def.Clone()
		if def.Kind == entity.ValueChoices {
			return entity.Definition{}, false, &EngineChoicesError{Classname: classname, Key: key}
		}
	default:
		cands := slices.DeleteFunc(sorted, func(a entity.Alternative) bool {
			return a.Tags.Has("!"+tags.Engine) || a.Tags.Has("-"+tags.Engine)
		})
		if len(cands) == 0 {
			return entity.Definition{}, false, nil
		}
		kinds := make([]string, 0, len(cands))
		for _, c := range cands {
			kinds = append(kinds, string(c.Def.Kind))
		}
		slices.Sort(kinds)
		if kinds = slices.Compact(kinds); len(kinds) > 2 {
			p.warn(classname, key, "has multiple types: %s", strings.Join(kinds, ", "))
		}
		// Smallest tag set first, ties broken by canonical key.
		def = cands[0].Def.Clone()
	}

	if def.Kind == entity.ValueChoices {
		p.warn(classname, key, "uses the choices type, provide an ENGINE override")
		def.Kind = entity.ValueInteger
		for _, c := range def.Choices {
			if _, err := strconv.Atoi(strings.TrimSpace(c.Value)); err != nil {
				def.Kind = entity.ValueString
				break
			}
		}
		def.Choices = nil
	}
	def.Desc = ""
	return def, true, nil
}
