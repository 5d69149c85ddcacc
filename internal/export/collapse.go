package export

import (
	"slices"
	"strings"

	"github.com/MrWong99/entunify/internal/entity"
)

// collapser inlines inherited keys and helpers into every entity.
type collapser struct {
	db       *entity.Database
	skip     map[string]bool
	done     map[string]bool
	visiting []string
}

// collapse resolves the inheritance of every entity in db. Bases whose
// lower-cased classname is in skip were culled and are ignored. Afterwards
// no entity lists any bases.
func collapse(db *entity.Database, skip map[string]bool) error {
	c := &collapser{db: db, skip: skip, done: make(map[string]bool)}
	for _, e := range db.List() {
		if err := c.resolve(e); err != nil {
			return err
		}
	}
	for _, e := range db.List() {
		e.Bases = nil
	}
	return nil
}

// resolve collapses e after its bases, depth first and left to right. Keys
// already present win, so the closest ancestor wins over farther ones.
func (c *collapser) resolve(e *entity.Entity) error {
	key := strings.ToLower(e.Classname)
	if c.done[key] {
		return nil
	}
	if i := slices.Index(c.visiting, key); i >= 0 {
		return &CycleError{Chain: append(slices.Clone(c.visiting[i:]), key)}
	}
	c.visiting = append(c.visiting, key)
	defer func() { c.visiting = c.visiting[:len(c.visiting)-1] }()

	var (
		inherited [3]entity.Category
		helpers   []entity.Helper
	)
	for _, name := range e.Bases {
		if c.skip[strings.ToLower(name)] {
			continue
		}
		base, err := c.db.Get(name)
		if err != nil {
			return &UnknownBaseError{Classname: e.Classname, Base: name}
		}
		if err := c.resolve(base); err != nil {
			return err
		}
		for i, cat := range base.Categories() {
			for _, k := range cat.Names() {
				if inherited[i].Has(k) {
					continue
				}
				alts, _ := cat.Get(k)
				inherited[i].Set(k, alts.Clone())
			}
		}
		for _, h := range base.Helpers {
			if !h.Kind.IsExtension() {
				helpers = append(helpers, h)
			}
		}
	}

	for i, own := range e.Categories() {
		merged := inherited[i]
		for _, k := range own.Names() {
			alts, _ := own.Get(k)
			merged.Set(k, alts)
		}
		*own = merged
	}

	helpers = append(helpers, e.Helpers...)
	e.Helpers = e.Helpers[:0:0]
	for _, h := range helpers {
		if !slices.ContainsFunc(e.Helpers, h.Equal) {
			e.Helpers = append(e.Helpers, h)
		}
	}

	c.done[key] = true
	return nil
}
