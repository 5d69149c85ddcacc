// Package tags implements the tag vocabulary and tag algebra used to qualify
// entity definitions by engine release and optional feature.
//
// A [Vocabulary] is built once and never mutated afterwards; it is safe to
// share between goroutines. [Default] returns the built-in vocabulary.
package tags

import (
	"fmt"
	"slices"
	"strings"
)

// Prefixes understood by the algebra.
const (
	SincePrefix = "SINCE_"
	UntilPrefix = "UNTIL_"
)

// Special tags.
const (
	// Engine marks definitions carrying the machine-oriented representation.
	Engine = "ENGINE"

	// Srctools marks definitions implemented by the post-compiler.
	Srctools = "SRCTOOLS"
)

// Release is one named engine generation.
type Release struct {
	Name  string
	Title string
}

// Vocabulary is the fixed set of legal tags: releases in chronological order,
// feature bundles, special tags and the synthesized SINCE_/UNTIL_ tags.
type Vocabulary struct {
	releases []Release
	position map[string]int
	features map[string][]string
	feature  []string
	special  []string
	known    map[string]struct{}
}

// NewVocabulary validates and builds a Vocabulary. releases must be in
// chronological order. features maps a release name to the feature tags it
// implies.
func NewVocabulary(releases []Release, features map[string][]string, special []string) (*Vocabulary, error) {
	v := &Vocabulary{
		position: make(map[string]int, len(releases)),
		features: make(map[string][]string, len(features)),
		known:    make(map[string]struct{}),
	}
	for i, r := range releases {
		name := strings.ToUpper(strings.TrimSpace(r.Name))
		if name == "" {
			return nil, fmt.Errorf("tags: release %d has an empty name", i)
		}
		if _, dup := v.position[name]; dup {
			return nil, fmt.Errorf("tags: duplicate release %q", name)
		}
		v.position[name] = i
		v.releases = append(v.releases, Release{Name: name, Title: r.Title})
		v.known[name] = struct{}{}
		v.known[SincePrefix+name] = struct{}{}
		v.known[UntilPrefix+name] = struct{}{}
	}

	for rel, feats := range features {
		up := strings.ToUpper(rel)
		if _, ok := v.position[up]; !ok {
			return nil, fmt.Errorf("tags: features declared for unknown release %q", rel)
		}
		for _, f := range feats {
			f = strings.ToUpper(f)
			v.features[up] = append(v.features[up], f)
			v.known[f] = struct{}{}
			v.feature = append(v.feature, f)
		}
		slices.Sort(v.features[up])
	}
	slices.Sort(v.feature)
	v.feature = slices.Compact(v.feature)

	for _, s := range special {
		s = strings.ToUpper(s)
		v.special = append(v.special, s)
		v.known[s] = struct{}{}
	}
	slices.Sort(v.special)
	return v, nil
}

// Releases returns the releases in chronological order.
func (v *Vocabulary) Releases() []Release {
	return slices.Clone(v.releases)
}

// Features returns every feature tag, sorted.
func (v *Vocabulary) Features() []string {
	return slices.Clone(v.feature)
}

// Special returns the special tags, sorted.
func (v *Vocabulary) Special() []string {
	return slices.Clone(v.special)
}

// Release resolves name (case-insensitive) to the canonical release name.
func (v *Vocabulary) Release(name string) (string, bool) {
	up := strings.ToUpper(strings.TrimSpace(name))
	if _, ok := v.position[up]; !ok {
		return "", false
	}
	return up, true
}

// IsKnown reports whether tag (without a !, - or + prefix) is part of the
// vocabulary. The comparison is case-insensitive.
func (v *Vocabulary) IsKnown(tag string) bool {
	_, ok := v.known[strings.ToUpper(tag)]
	return ok
}

// All returns every legal tag, sorted.
func (v *Vocabulary) All() []string {
	all := make([]string, 0, len(v.known))
	for t := range v.known {
		all = append(all, t)
	}
	slices.Sort(all)
	return all
}

// ─────────────────────────────────────────────────────────────────────────────
// Built-in vocabulary
// ─────────────────────────────────────────────────────────────────────────────

// defaultReleases lists the supported releases in chronological order.
// SINCE_<r> applies to r and every later release, UNTIL_<r> only to releases
// before r.
var defaultReleases = []Release{
	{"HLS", "Half-Life: Source"},
	{"DODS", "Day of Defeat: Source"},
	{"CSS", "Counter-Strike: Source"},
	{"HL2", "Half-Life 2"},
	{"EP1", "Half-Life 2: Episode One"},
	{"EP2", "Half-Life 2: Episode Two"},
	{"TF2", "Team Fortress 2"},
	{"P1", "Portal"},
	{"L4D", "Left 4 Dead"},
	{"L4D2", "Left 4 Dead 2"},
	{"ASW", "Alien Swarm"},
	{"P2", "Portal 2"},
	{"CSGO", "Counter-Strike: Global Offensive"},
	{"SFM", "Source Filmmaker"},
	{"DOTA2", "Dota 2"},
	{"PUNT", "PUNT"},
	{"P2DES", "Portal 2: Desolation"},
}

// defaultFeatures lists features backported to specific releases.
var defaultFeatures = map[string][]string{
	"L4D":   {"INSTANCING"},
	"TF2":   {"INSTANCING", "PROP_SCALING"},
	"ASW":   {"INSTANCING", "VSCRIPT"},
	"P2":    {"INSTANCING", "VSCRIPT"},
	"CSGO":  {"INSTANCING", "PROP_SCALING", "VSCRIPT"},
	"P2DES": {"INSTANCING", "PROP_SCALING", "VSCRIPT"},
}

var defaultVocabulary = mustVocabulary(defaultReleases, defaultFeatures, []string{Engine, Srctools})

func mustVocabulary(releases []Release, features map[string][]string, special []string) *Vocabulary {
	v, err := NewVocabulary(releases, features, special)
	if err != nil {
		panic(err)
	}
	return v
}

// Default returns the built-in vocabulary. The returned value is shared and
// must be treated as read-only.
func Default() *Vocabulary {
	return defaultVocabulary
}
