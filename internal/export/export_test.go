package export_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/internal/export"
	"github.com/MrWong99/entunify/pkg/tags"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func def(kind entity.ValueKind, dflt string) entity.Definition {
	return entity.Definition{Kind: kind, Default: dflt, Desc: "some prose"}
}

type builder struct{ e *entity.Entity }

func ent(classname string, kind entity.Kind, appliesTo ...string) *builder {
	e := &entity.Entity{Classname: classname, Kind: kind}
	if len(appliesTo) > 0 {
		e.Helpers = []entity.Helper{{Kind: entity.HelperAppliesTo, Args: appliesTo}}
	}
	return &builder{e: e}
}

func (b *builder) bases(names ...string) *builder {
	b.e.Bases = names
	return b
}

func (b *builder) helper(kind entity.HelperKind, args ...string) *builder {
	b.e.Helpers = append(b.e.Helpers, entity.Helper{Kind: kind, Args: args})
	return b
}

func (b *builder) kv(name string, alts entity.Alternatives) *builder {
	b.e.KeyValues.Set(name, alts)
	return b
}

func (b *builder) input(name string, alts entity.Alternatives) *builder {
	b.e.Inputs.Set(name, alts)
	return b
}

func newDB(t *testing.T, bs ...*builder) *entity.Database {
	t.Helper()
	db := entity.NewDatabase()
	for _, b := range bs {
		if err := db.Add(b.e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return db
}

func project(t *testing.T, db *entity.Database, mode export.Mode, tagList ...string) (*entity.Database, *export.Report) {
	t.Helper()
	out, rep, err := export.Project(context.Background(), db, export.Options{
		Mode:   mode,
		Tags:   tagList,
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("Project(%s, %v): unexpected error: %v", mode, tagList, err)
	}
	return out, rep
}

func single(t *testing.T, cat *entity.Category, name string) entity.Definition {
	t.Helper()
	alts, ok := cat.Get(name)
	if !ok {
		t.Fatalf("key %q missing", name)
	}
	d, ok := alts[tags.Set{}]
	if !ok || len(alts) != 1 {
		t.Fatalf("key %q: expected single universal alternative, got %v", name, alts)
	}
	return d
}

// ── Tagged mode ──────────────────────────────────────────────────────────────

func TestTagged_CullsAndStrips(t *testing.T) {
	t.Parallel()

	db := newDB(t,
		ent("Targetname", entity.KindBase).kv("targetname", entity.Universal(def(entity.ValueTargetSource, ""))),
		ent("TFOnly", entity.KindBase, "TF2").kv("teamnum", entity.Universal(def(entity.ValueInteger, "0"))),
		ent("env_beam", entity.KindPoint, "HL2", "EP1").
			bases("Targetname", "TFOnly").
			helper(entity.HelperSprite).
			kv("life", entity.Universal(def(entity.ValueFloat, "0"))),
		ent("tf_gamerules", entity.KindPoint, "TF2"),
	)

	out, _ := project(t, db, export.ModeTagged, "hl2")

	if out.Has("tf_gamerules") {
		t.Fatal("tf_gamerules: expected to be culled")
	}
	for _, e := range out.List() {
		if e.IsBase() {
			t.Fatalf("base entity %q in output", e.Classname)
		}
		for _, h := range e.Helpers {
			if h.Kind == entity.HelperAppliesTo {
				t.Fatalf("%s: AppliesTo helper in output", e.Classname)
			}
		}
	}

	beam, err := out.Get("env_beam")
	if err != nil {
		t.Fatalf("Get(env_beam): %v", err)
	}
	if names := beam.KeyValues.Names(); len(names) != 2 || names[0] != "targetname" || names[1] != "life" {
		t.Fatalf("env_beam keyvalues: expected [targetname life], got %v", names)
	}
	if len(beam.Bases) != 0 {
		t.Fatalf("env_beam bases: expected none after collapse, got %v", beam.Bases)
	}

	// The loaded database is untouched.
	orig, _ := db.Get("env_beam")
	if len(orig.Bases) != 2 || orig.Helpers[0].Kind != entity.HelperAppliesTo {
		t.Fatal("Project modified the source database")
	}
}

func TestTagged_InheritanceOrder(t *testing.T) {
	t.Parallel()

	db := newDB(t,
		ent("Root", entity.KindBase).kv("k", entity.Universal(def(entity.ValueString, "root"))).helper(entity.HelperColor, "255 0 0"),
		ent("Left", entity.KindBase).bases("Root").kv("k", entity.Universal(def(entity.ValueString, "left"))),
		ent("Right", entity.KindBase).bases("Root").kv("r", entity.Universal(def(entity.ValueString, "right"))),
		ent("child", entity.KindPoint).bases("Left", "Right").kv("own", entity.Universal(def(entity.ValueString, "own"))),
	)

	out, _ := project(t, db, export.ModeTagged, "HL2")
	child, _ := out.Get("child")

	if got := single(t, &child.KeyValues, "k").Default; got != "left" {
		t.Fatalf("k: expected closest ancestor value left, got %q", got)
	}
	if !child.KeyValues.Has("r") || !child.KeyValues.Has("own") {
		t.Fatalf("child keyvalues: got %v", child.KeyValues.Names())
	}
	colors := 0
	for _, h := range child.Helpers {
		if h.Kind == entity.HelperColor {
			colors++
		}
	}
	if colors != 1 {
		t.Fatalf("diamond inheritance: expected one color helper, got %d", colors)
	}
}

func TestTagged_Narrowing(t *testing.T) {
	t.Parallel()

	db := newDB(t, ent("x", entity.KindPoint).
		kv("split", entity.Alternatives{
			tags.NewSet("HL2"): def(entity.ValueString, "hl2"),
			tags.NewSet("EP1"): def(entity.ValueString, "ep1"),
		}).
		kv("removed", entity.Alternatives{
			tags.NewSet("HL2", "!EP1"): def(entity.ValueString, "old"),
		}).
		kv("mode", entity.Universal(entity.Definition{
			Kind: entity.ValueChoices,
			Choices: []entity.Choice{
				{Value: "0", Name: "Off"},
				{Value: "1", Name: "On", Tags: tags.NewSet("SINCE_EP2")},
			},
		})),
	)

	tests := []struct {
		tag          string
		split        string
		removed      bool
		choiceValues int
	}{
		{tag: "HL2", split: "hl2", removed: false, choiceValues: 1},
		{tag: "EP1", split: "ep1", removed: true, choiceValues: 1},
		{tag: "EP2", split: "", removed: true, choiceValues: 2},
	}

	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			t.Parallel()
			out, _ := project(t, db, export.ModeTagged, tc.tag)
			x, _ := out.Get("x")

			if tc.split == "" {
				if x.KeyValues.Has("split") {
					t.Fatal("split: expected key to be dropped")
				}
			} else if got := single(t, &x.KeyValues, "split").Default; got != tc.split {
				t.Fatalf("split: expected %q, got %q", tc.split, got)
			}
			if got := !x.KeyValues.Has("removed"); got != tc.removed {
				t.Fatalf("removed: expected dropped=%v", tc.removed)
			}
			choices := single(t, &x.KeyValues, "mode").Choices
			if len(choices) != tc.choiceValues {
				t.Fatalf("mode: expected %d choices, got %v", tc.choiceValues, choices)
			}
			for _, c := range choices {
				if !c.Tags.IsEmpty() {
					t.Fatalf("mode: choice %q kept tags %s", c.Value, c.Tags)
				}
			}
		})
	}
}

func TestTagged_Ambiguous(t *testing.T) {
	t.Parallel()

	db := newDB(t, ent("x", entity.KindPoint).kv("k", entity.Alternatives{
		tags.NewSet("SINCE_HL2"): def(entity.ValueString, "a"),
		tags.NewSet("UNTIL_TF2"): def(entity.ValueString, "b"),
	}))

	_, _, err := export.Project(context.Background(), db, export.Options{
		Mode:   export.ModeTagged,
		Tags:   []string{"EP1"},
		Logger: quietLogger(),
	})
	var amb *export.AmbiguousKeyError
	if !errors.As(err, &amb) {
		t.Fatalf("Project: expected AmbiguousKeyError, got %v", err)
	}
	if amb.Classname != "x" || amb.Category != "keyvalues" || amb.Key != "k" || len(amb.Matches) != 2 {
		t.Fatalf("AmbiguousKeyError: unexpected fields %+v", amb)
	}
}

func TestTagged_SeveralMatchesAreAmbiguous(t *testing.T) {
	t.Parallel()

	db := newDB(t, ent("x", entity.KindPoint).kv("k", entity.Alternatives{
		{}:                 def(entity.ValueString, "1"),
		tags.NewSet("EP2"): def(entity.ValueString, "2"),
	}))

	// Only the untagged entry applies to HL2.
	out, _ := project(t, db, export.ModeTagged, "HL2")
	x, _ := out.Get("x")
	if got := single(t, &x.KeyValues, "k").Default; got != "1" {
		t.Fatalf("k under HL2: expected 1, got %q", got)
	}

	_, _, err := export.Project(context.Background(), db, export.Options{
		Mode:   export.ModeTagged,
		Tags:   []string{"EP2"},
		Logger: quietLogger(),
	})
	var amb *export.AmbiguousKeyError
	if !errors.As(err, &amb) {
		t.Fatalf("Project: expected AmbiguousKeyError, got %v", err)
	}
	if amb.Key != "k" || len(amb.Matches) != 2 {
		t.Fatalf("AmbiguousKeyError: unexpected fields %+v", amb)
	}
}

func TestTagged_Polyfills(t *testing.T) {
	t.Parallel()

	db := newDB(t, ent("x", entity.KindPoint).
		kv("enabled", entity.Universal(def(entity.ValueBoolean, "1"))).
		kv("fx", entity.Universal(def(entity.ValueParticleSystem, ""))).
		kv("script", entity.Universal(def(entity.ValueScript, ""))).
		input("RunScriptFile", entity.Universal(def(entity.ValueScript, ""))))

	out, rep := project(t, db, export.ModeTagged, "HL2")
	x, _ := out.Get("x")
	if d := single(t, &x.KeyValues, "enabled"); d.Kind != entity.ValueChoices || len(d.Choices) != 2 {
		t.Fatalf("enabled: expected No/Yes choices, got %+v", d)
	}
	if d := single(t, &x.KeyValues, "fx"); d.Kind != entity.ValueString {
		t.Fatalf("fx: expected string, got %s", d.Kind)
	}
	if d := single(t, &x.Inputs, "RunScriptFile"); d.Kind != entity.ValueString {
		t.Fatalf("RunScriptFile: expected string, got %s", d.Kind)
	}
	if len(rep.Polyfills) != 4 {
		t.Fatalf("Report.Polyfills: expected 4, got %v", rep.Polyfills)
	}

	// TF2 has VScript, so scripts stay; boolean is still polyfilled.
	out, _ = project(t, db, export.ModeTagged, "TF2")
	x, _ = out.Get("x")
	if d := single(t, &x.KeyValues, "script"); d.Kind != entity.ValueScript {
		t.Fatalf("script under TF2: expected script, got %s", d.Kind)
	}

	out, _ = project(t, db, export.ModeTagged, "P2")
	x, _ = out.Get("x")
	if d := single(t, &x.KeyValues, "enabled"); d.Kind != entity.ValueBoolean {
		t.Fatalf("enabled under P2: expected boolean, got %s", d.Kind)
	}
}

func TestTagged_Errors(t *testing.T) {
	t.Parallel()

	db := newDB(t, ent("x", entity.KindPoint))

	t.Run("no tags", func(t *testing.T) {
		t.Parallel()
		if _, _, err := export.Project(context.Background(), db, export.Options{Mode: export.ModeTagged}); err == nil {
			t.Fatal("Project: expected error without tags, got nil")
		}
	})

	t.Run("unknown tag", func(t *testing.T) {
		t.Parallel()
		_, _, err := export.Project(context.Background(), db, export.Options{Mode: export.ModeTagged, Tags: []string{"HL3"}})
		var unk *tags.UnknownTagError
		if !errors.As(err, &unk) {
			t.Fatalf("Project: expected UnknownTagError, got %v", err)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Parallel()
		if _, _, err := export.Project(context.Background(), db, export.Options{Mode: "fast"}); err == nil {
			t.Fatal("Project: expected error for unknown mode, got nil")
		}
	})

	t.Run("unknown base", func(t *testing.T) {
		t.Parallel()
		bad := newDB(t, ent("x", entity.KindPoint).bases("Missing"))
		_, _, err := export.Project(context.Background(), bad, export.Options{Mode: export.ModeTagged, Tags: []string{"HL2"}})
		var ub *export.UnknownBaseError
		if !errors.As(err, &ub) || ub.Base != "Missing" {
			t.Fatalf("Project: expected UnknownBaseError, got %v", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		t.Parallel()
		bad := newDB(t,
			ent("A", entity.KindBase).bases("B"),
			ent("B", entity.KindBase).bases("A"),
		)
		_, _, err := export.Project(context.Background(), bad, export.Options{Mode: export.ModeEngine})
		var cyc *export.CycleError
		if !errors.As(err, &cyc) {
			t.Fatalf("Project: expected CycleError, got %v", err)
		}
	})
}

// ── Engine mode ──────────────────────────────────────────────────────────────

func TestEngine_Resolution(t *testing.T) {
	t.Parallel()

	db := newDB(t,
		ent("Base", entity.KindBase).kv("inherited", entity.Universal(def(entity.ValueString, "b"))),
		ent("x", entity.KindPoint, "HL2").
			bases("Base").
			helper(entity.HelperOrderBy, "a").
			helper(entity.HelperStudio, "models/x.mdl").
			kv("single", entity.Alternatives{tags.NewSet("EP1"): def(entity.ValueFloat, "1.5")}).
			kv("override", entity.Alternatives{
				tags.NewSet("HL2"):    def(entity.ValueString, "hl2"),
				tags.NewSet("ENGINE"): def(entity.ValueInteger, "3"),
			}).
			kv("required", entity.Alternatives{
				tags.NewSet("HL2"):     def(entity.ValueString, "hl2"),
				tags.NewSet("+ENGINE"): def(entity.ValueFloat, "4"),
			}).
			kv("smallest", entity.Alternatives{
				tags.NewSet("HL2", "EP1"): def(entity.ValueString, "wide"),
				tags.NewSet("EP2"):        def(entity.ValueString, "narrow"),
			}).
			kv("intchoices", entity.Universal(entity.Definition{
				Kind:    entity.ValueChoices,
				Choices: []entity.Choice{{Value: "0", Name: "Off"}, {Value: " 1", Name: "On"}},
			})).
			kv("strchoices", entity.Universal(entity.Definition{
				Kind:    entity.ValueChoices,
				Choices: []entity.Choice{{Value: "0", Name: "Off"}, {Value: "auto", Name: "Auto"}},
			})).
			kv("hidden", entity.Alternatives{tags.NewSet("!ENGINE"): def(entity.ValueString, "")}).
			kv("mixed", entity.Alternatives{
				tags.NewSet("HL2"):            def(entity.ValueString, ""),
				tags.NewSet("EP1"):            def(entity.ValueInteger, ""),
				tags.NewSet("EP2", "!ENGINE"): def(entity.ValueColor255, ""),
				tags.NewSet("TF2", "P2"):      def(entity.ValueFloat, ""),
			}),
	)

	out, rep := project(t, db, export.ModeEngine, "HL2")
	if out.Has("Base") {
		t.Fatal("base entity in engine output")
	}
	x, _ := out.Get("x")

	for _, h := range x.Helpers {
		if h.Kind.IsExtension() {
			t.Fatalf("extension helper %q kept in engine output", h.Kind)
		}
	}
	if len(x.Helpers) != 1 {
		t.Fatalf("helpers: expected only studio, got %v", x.Helpers)
	}

	tests := []struct {
		key  string
		kind entity.ValueKind
		dflt string
	}{
		{"inherited", entity.ValueString, "b"},
		{"single", entity.ValueFloat, "1.5"},
		{"override", entity.ValueInteger, "3"},
		{"required", entity.ValueFloat, "4"},
		{"smallest", entity.ValueString, "narrow"},
		{"intchoices", entity.ValueInteger, ""},
		{"strchoices", entity.ValueString, ""},
		{"hidden", entity.ValueString, ""},
		{"mixed", entity.ValueInteger, ""},
	}
	for _, tc := range tests {
		d := single(t, &x.KeyValues, tc.key)
		if d.Kind != tc.kind || d.Default != tc.dflt {
			t.Errorf("%s: expected %s %q, got %s %q", tc.key, tc.kind, tc.dflt, d.Kind, d.Default)
		}
		if d.Desc != "" {
			t.Errorf("%s: description not cleared", tc.key)
		}
		if len(d.Choices) != 0 {
			t.Errorf("%s: choices kept", tc.key)
		}
	}
	// Two choices warnings and one multiple-types warning.
	if len(rep.Diagnostics) != 3 {
		t.Fatalf("Report: expected 3 diagnostics, got %v", rep.Diagnostics)
	}
	if rep.Search != tags.NewSet("ENGINE") {
		t.Fatalf("Report.Search: expected {ENGINE}, got %s", rep.Search)
	}
}

func TestEngine_LoneAlternative(t *testing.T) {
	t.Parallel()

	db := newDB(t, ent("env_y", entity.KindPoint).
		kv("k", entity.Alternatives{tags.NewSet("ENGINE"): {
			Kind:    entity.ValueChoices,
			Choices: []entity.Choice{{Value: "0"}, {Value: "1"}},
		}}).
		kv("hidden", entity.Alternatives{tags.NewSet("!ENGINE"): def(entity.ValueInteger, "7")}).
		kv("gone", entity.Alternatives{
			tags.NewSet("HL2", "!ENGINE"): def(entity.ValueInteger, "1"),
			tags.NewSet("-ENGINE"):        def(entity.ValueInteger, "2"),
		}))

	out, rep := project(t, db, export.ModeEngine)
	y, _ := out.Get("env_y")

	if d := single(t, &y.KeyValues, "k"); d.Kind != entity.ValueInteger {
		t.Fatalf("k: expected choices converted to integer, got %s", d.Kind)
	}
	if d := single(t, &y.KeyValues, "hidden"); d.Kind != entity.ValueInteger || d.Default != "7" {
		t.Fatalf("hidden: expected integer 7, got %s %q", d.Kind, d.Default)
	}
	if y.KeyValues.Has("gone") {
		t.Fatal("gone: expected key excluded from engine")
	}
	if len(rep.Diagnostics) != 1 {
		t.Fatalf("Report: expected one choices warning, got %v", rep.Diagnostics)
	}
}

func TestEngine_TieBreakIsStable(t *testing.T) {
	t.Parallel()

	alts := entity.Alternatives{
		tags.NewSet("HL2"): def(entity.ValueInteger, "1"),
		tags.NewSet("EP1"): def(entity.ValueFloat, "2.5"),
	}
	want := alts.Sorted()[0].Def
	if want.Kind != entity.ValueFloat {
		t.Fatalf("Sorted: expected {EP1} first, got %s", want.Kind)
	}
	db := newDB(t, ent("x", entity.KindPoint).kv("k", alts))

	for i := range 20 {
		out, _ := project(t, db, export.ModeEngine)
		x, _ := out.Get("x")
		if d := single(t, &x.KeyValues, "k"); d.Kind != want.Kind || d.Default != want.Default {
			t.Fatalf("run %d: expected %s %q, got %s %q", i, want.Kind, want.Default, d.Kind, d.Default)
		}
	}
}

func TestEngine_ChoicesOverrideIsFatal(t *testing.T) {
	t.Parallel()

	db := newDB(t, ent("x", entity.KindPoint).input("SetMode", entity.Alternatives{
		tags.NewSet("HL2"): def(entity.ValueString, ""),
		tags.NewSet("ENGINE"): {
			Kind:    entity.ValueChoices,
			Choices: []entity.Choice{{Value: "0"}},
		},
	}))

	_, _, err := export.Project(context.Background(), db, export.Options{Mode: export.ModeEngine, Logger: quietLogger()})
	var ec *export.EngineChoicesError
	if !errors.As(err, &ec) {
		t.Fatalf("Project: expected EngineChoicesError, got %v", err)
	}
	if ec.Category != "inputs" || ec.Key != "SetMode" {
		t.Fatalf("EngineChoicesError: unexpected fields %+v", ec)
	}
}
