// Package entity defines the in-memory entity database shared by import and
// export: entity definitions, their tagged keyvalue/input/output alternatives,
// helper directives, and the YAML fragment files they are stored in.
//
// Supported input formats:
//   - YAML fragment files ([LoadFragmentFile], [LoadFragmentFromReader])
//
// A [Database] is not safe for concurrent mutation; callers own it for the
// duration of a single import or export.
package entity

import (
	"maps"
	"slices"

	"github.com/MrWong99/entunify/pkg/tags"
)

// Kind classifies an entity.
type Kind string

const (
	// KindBase is an abstract entity only used through inheritance.
	KindBase Kind = "base"

	// KindPoint is a point-placeable entity.
	KindPoint Kind = "point"

	// KindBrush is a brush-placeable entity.
	KindBrush Kind = "brush"

	// KindWorld is the world root entity.
	KindWorld Kind = "world"

	// KindNPC is a point entity with NPC editor support.
	KindNPC Kind = "npc"

	// KindFilter is a point entity usable as a filter.
	KindFilter Kind = "filter"

	// KindKeyframe is a point entity forming keyframe chains.
	KindKeyframe Kind = "keyframe"

	// KindMove is a point entity forming move chains.
	KindMove Kind = "move"
)

// IsValid reports whether k is a recognised entity kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindBase, KindPoint, KindBrush, KindWorld, KindNPC, KindFilter, KindKeyframe, KindMove:
		return true
	}
	return false
}

// ValueKind is the semantic type of a keyvalue, or the parameter type of an
// input or output.
type ValueKind string

const (
	ValueString            ValueKind = "string"
	ValueInteger           ValueKind = "integer"
	ValueFloat             ValueKind = "float"
	ValueBoolean           ValueKind = "boolean"
	ValueChoices           ValueKind = "choices"
	ValueFlags             ValueKind = "flags"
	ValueVoid              ValueKind = "void"
	ValueColor255          ValueKind = "color255"
	ValueColor1            ValueKind = "color1"
	ValueStudio            ValueKind = "studio"
	ValueSprite            ValueKind = "sprite"
	ValueSound             ValueKind = "sound"
	ValueDecal             ValueKind = "decal"
	ValueMaterial          ValueKind = "material"
	ValueScene             ValueKind = "scene"
	ValueTargetSource      ValueKind = "target_source"
	ValueTargetDestination ValueKind = "target_destination"
	ValueTargetNameOrClass ValueKind = "target_name_or_class"
	ValueVector            ValueKind = "vector"
	ValueAngle             ValueKind = "angle"
	ValueOrigin            ValueKind = "origin"
	ValueAxis              ValueKind = "axis"
	ValueSideList          ValueKind = "sidelist"
	ValueVecLine           ValueKind = "vecline"
	ValueNPCClass          ValueKind = "npcclass"
	ValueFilterClass       ValueKind = "filterclass"
	ValueParticleSystem    ValueKind = "particlesystem"
	ValueNodeID            ValueKind = "node_id"
	ValueNodeDest          ValueKind = "node_dest"
	ValueScript            ValueKind = "script"
	ValueScriptList        ValueKind = "script_list"
	ValueInstanceFile      ValueKind = "instance_file"
	ValueInstanceVariable  ValueKind = "instance_variable"
	ValueInstanceParm      ValueKind = "instance_parm"
)

// IsValid reports whether v is a recognised value kind.
func (v ValueKind) IsValid() bool {
	switch v {
	case ValueString, ValueInteger, ValueFloat, ValueBoolean, ValueChoices, ValueFlags,
		ValueVoid, ValueColor255, ValueColor1, ValueStudio, ValueSprite, ValueSound,
		ValueDecal, ValueMaterial, ValueScene, ValueTargetSource, ValueTargetDestination,
		ValueTargetNameOrClass, ValueVector, ValueAngle, ValueOrigin, ValueAxis,
		ValueSideList, ValueVecLine, ValueNPCClass, ValueFilterClass, ValueParticleSystem,
		ValueNodeID, ValueNodeDest, ValueScript, ValueScriptList, ValueInstanceFile,
		ValueInstanceVariable, ValueInstanceParm:
		return true
	}
	return false
}

// HelperKind identifies a helper directive.
type HelperKind string

const (
	// HelperAppliesTo lists the releases an entity variant supports.
	HelperAppliesTo HelperKind = "appliesto"

	// HelperOrderBy orders keyvalues in the editor.
	HelperOrderBy HelperKind = "orderby"

	HelperStudio          HelperKind = "studio"
	HelperStudioProp      HelperKind = "studioprop"
	HelperIconSprite      HelperKind = "iconsprite"
	HelperSprite          HelperKind = "sprite"
	HelperSize            HelperKind = "size"
	HelperColor           HelperKind = "color"
	HelperSphere          HelperKind = "sphere"
	HelperLine            HelperKind = "line"
	HelperCylinder        HelperKind = "cylinder"
	HelperFrustum         HelperKind = "frustum"
	HelperSideList        HelperKind = "sidelist"
	HelperOrigin          HelperKind = "origin"
	HelperVecLine         HelperKind = "vecline"
	HelperAxis            HelperKind = "axis"
	HelperHalfGridSnap    HelperKind = "halfgridsnap"
	HelperLight           HelperKind = "light"
	HelperLightProp       HelperKind = "lightprop"
	HelperLightCone       HelperKind = "lightcone"
	HelperDecal           HelperKind = "decal"
	HelperOverlay         HelperKind = "overlay"
	HelperInstance        HelperKind = "instance"
	HelperWorldText       HelperKind = "worldtext"
	HelperWireBox         HelperKind = "wirebox"
	HelperSweptPlayerHull HelperKind = "sweptplayerhull"
	HelperCatapult        HelperKind = "catapult"
)

// IsValid reports whether h is a recognised helper kind.
func (h HelperKind) IsValid() bool {
	switch h {
	case HelperAppliesTo, HelperOrderBy, HelperStudio, HelperStudioProp, HelperIconSprite,
		HelperSprite, HelperSize, HelperColor, HelperSphere, HelperLine, HelperCylinder,
		HelperFrustum, HelperSideList, HelperOrigin, HelperVecLine, HelperAxis,
		HelperHalfGridSnap, HelperLight, HelperLightProp, HelperLightCone, HelperDecal,
		HelperOverlay, HelperInstance, HelperWorldText, HelperWireBox,
		HelperSweptPlayerHull, HelperCatapult:
		return true
	}
	return false
}

// IsExtension reports whether h only matters to this tool and the editor
// configuration, never to a machine consumer.
func (h HelperKind) IsExtension() bool {
	switch h {
	case HelperAppliesTo, HelperOrderBy:
		return true
	}
	return false
}

// Helper is one rendering or editor directive with positional arguments.
type Helper struct {
	Kind HelperKind `yaml:"kind"`
	Args []string   `yaml:"args,omitempty,flow"`
}

// Equal reports whether h and o are the same directive.
func (h Helper) Equal(o Helper) bool {
	return h.Kind == o.Kind && slices.Equal(h.Args, o.Args)
}

// Choice is one entry of a choices keyvalue.
type Choice struct {
	Value string   `yaml:"value"`
	Name  string   `yaml:"name"`
	Tags  tags.Set `yaml:"tags,omitempty,flow"`
}

// Flag is one bit of a flags keyvalue.
type Flag struct {
	Bit     int      `yaml:"bit"`
	Name    string   `yaml:"name"`
	Default bool     `yaml:"default,omitempty"`
	Tags    tags.Set `yaml:"tags,omitempty,flow"`
}

// Definition is one concrete value for a keyvalue, input or output.
// For inputs and outputs Kind is the parameter type.
type Definition struct {
	Kind        ValueKind `yaml:"type,omitempty"`
	DisplayName string    `yaml:"display,omitempty"`
	Desc        string    `yaml:"description,omitempty"`
	Default     string    `yaml:"default,omitempty"`
	ReadOnly    bool      `yaml:"readonly,omitempty"`
	Reportable  bool      `yaml:"reportable,omitempty"`
	Choices     []Choice  `yaml:"choices,omitempty"`
	Flags       []Flag    `yaml:"flags,omitempty"`
}

// Equal is full structural equality: kind, text fields and choice/flag lists
// including their tags. Definitions differing only in description are not
// equal.
func (d Definition) Equal(o Definition) bool {
	return d.Kind == o.Kind &&
		d.DisplayName == o.DisplayName &&
		d.Desc == o.Desc &&
		d.Default == o.Default &&
		d.ReadOnly == o.ReadOnly &&
		d.Reportable == o.Reportable &&
		slices.Equal(d.Choices, o.Choices) &&
		slices.Equal(d.Flags, o.Flags)
}

// Clone returns a deep copy of d.
func (d Definition) Clone() Definition {
	d.Choices = slices.Clone(d.Choices)
	d.Flags = slices.Clone(d.Flags)
	return d
}

// Alternatives maps a tag set to the definition used when that set is
// selected. The map guarantees no two entries share a tag set; at most one
// entry has the empty set.
type Alternatives map[tags.Set]Definition

// Alternative is one entry of [Alternatives].
type Alternative struct {
	Tags tags.Set
	Def  Definition
}

// Sorted returns the entries ordered by tag set size, then canonical key.
func (a Alternatives) Sorted() []Alternative {
	out := make([]Alternative, 0, len(a))
	for _, k := range slices.SortedFunc(maps.Keys(a), tags.Compare) {
		out = append(out, Alternative{Tags: k, Def: a[k]})
	}
	return out
}

// Clone returns a deep copy of a.
func (a Alternatives) Clone() Alternatives {
	out := make(Alternatives, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

// Universal wraps def as the single untagged alternative.
func Universal(def Definition) Alternatives {
	return Alternatives{{}: def}
}

// Entity is one definable object type.
type Entity struct {
	Classname string
	Kind      Kind
	Desc      string
	Bases     []string
	Helpers   []Helper
	KeyValues Category
	Inputs    Category
	Outputs   Category
}

// Categories returns pointers to the keyvalue, input and output categories,
// in that order.
func (e *Entity) Categories() []*Category {
	return []*Category{&e.KeyValues, &e.Inputs, &e.Outputs}
}

// CategoryNames names the entries returned by [Entity.Categories].
var CategoryNames = []string{"keyvalues", "inputs", "outputs"}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Bases = slices.Clone(e.Bases)
	out.Helpers = make([]Helper, len(e.Helpers))
	for i, h := range e.Helpers {
		out.Helpers[i] = Helper{Kind: h.Kind, Args: slices.Clone(h.Args)}
	}
	out.KeyValues = e.KeyValues.Clone()
	out.Inputs = e.Inputs.Clone()
	out.Outputs = e.Outputs.Clone()
	return &out
}

// IsBase reports whether e is an abstract base entity.
func (e *Entity) IsBase() bool { return e.Kind == KindBase }
