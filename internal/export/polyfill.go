package export

import (
	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/pkg/tags"
)

// Polyfill rewrites values that older editors cannot display. It is applied
// in tagged mode when its Tags match the expanded request.
type Polyfill struct {
	Name  string
	Tags  tags.Set
	Apply func(e *entity.Entity)
}

// DefaultPolyfills returns the built-in polyfills in application order.
func DefaultPolyfills() []Polyfill {
	return []Polyfill{
		{
			Name:  "boolean",
			Tags:  tags.NewSet("UNTIL_ASW"),
			Apply: polyfillBoolean,
		},
		{
			Name:  "particlesystem",
			Tags:  tags.NewSet("UNTIL_ASW"),
			Apply: retypeKeyValues(entity.ValueParticleSystem, entity.ValueString),
		},
		{
			Name:  "node_id",
			Tags:  tags.NewSet("UNTIL_ASW"),
			Apply: retypeKeyValues(entity.ValueNodeID, entity.ValueInteger),
		},
		{
			Name:  "scripts",
			Tags:  tags.NewSet("UNTIL_L4D2", "!TF2"),
			Apply: polyfillScripts,
		},
	}
}

// eachDef calls fn on every definition of cat, storing the result back.
func eachDef(cat *entity.Category, fn func(d *entity.Definition)) {
	for _, name := range cat.Names() {
		alts, _ := cat.Get(name)
		next := make(entity.Alternatives, len(alts))
		for ts, d := range alts {
			fn(&d)
			next[ts] = d
		}
		cat.Set(name, next)
	}
}

// polyfillBoolean turns boolean keyvalues into No/Yes choices.
func polyfillBoolean(e *entity.Entity) {
	eachDef(&e.KeyValues, func(d *entity.Definition) {
		if d.Kind != entity.ValueBoolean {
			return
		}
		d.Kind = entity.ValueChoices
		d.Choices = []entity.Choice{
			{Value: "0", Name: "No"},
			{Value: "1", Name: "Yes"},
		}
	})
}

func retypeKeyValues(from, to entity.ValueKind) func(*entity.Entity) {
	return func(e *entity.Entity) {
		eachDef(&e.KeyValues, func(d *entity.Definition) {
			if d.Kind == from {
				d.Kind = to
			}
		})
	}
}

// polyfillScripts turns script keyvalues and script inputs into strings.
func polyfillScripts(e *entity.Entity) {
	eachDef(&e.KeyValues, func(d *entity.Definition) {
		if d.Kind == entity.ValueScript || d.Kind == entity.ValueScriptList {
			d.Kind = entity.ValueString
		}
	})
	eachDef(&e.Inputs, func(d *entity.Definition) {
		if d.Kind == entity.ValueScript {
			d.Kind = entity.ValueString
		}
	})
}
