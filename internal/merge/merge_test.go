package merge_test

import (
	"maps"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/internal/merge"
	"github.com/MrWong99/entunify/pkg/tags"
)

// entityOpts lets go-cmp compare entities through their ordered categories.
var entityOpts = cmp.Options{
	cmp.Comparer(func(a, b entity.Category) bool { return a.Equal(&b) }),
	cmp.Comparer(func(a, b tags.Set) bool { return a == b }),
}

func str(v string) entity.Definition {
	return entity.Definition{Kind: entity.ValueString, Default: v}
}

func withKV(e *entity.Entity, name string, alts entity.Alternatives) *entity.Entity {
	e.KeyValues.Set(name, alts)
	return e
}

func newEnt(kvs map[string]string) *entity.Entity {
	e := &entity.Entity{Classname: "x", Kind: entity.KindPoint}
	for _, k := range slices.Sorted(maps.Keys(kvs)) {
		e.KeyValues.Set(k, entity.Universal(str(kvs[k])))
	}
	return e
}

func kv(t *testing.T, e *entity.Entity, name string) entity.Alternatives {
	t.Helper()
	alts, ok := e.KeyValues.Get(name)
	if !ok {
		t.Fatalf("keyvalue %q missing", name)
	}
	return alts
}

func TestMergeEntity_Widens(t *testing.T) {
	t.Parallel()

	old := withKV(&entity.Entity{Classname: "x", Kind: entity.KindPoint}, "k",
		entity.Alternatives{tags.NewSet("HL2"): str("V1")})

	got, ch := merge.MergeEntity(old, newEnt(map[string]string{"k": "V1"}), "EP1")

	want := entity.Alternatives{tags.NewSet("EP1", "HL2"): str("V1")}
	if diff := cmp.Diff(want, kv(t, got, "k"), entityOpts); diff != "" {
		t.Fatalf("k mismatch (-want +got):\n%s", diff)
	}
	if ch.Widened != 1 || ch.Added != 0 {
		t.Fatalf("Changes: expected 1 widened, got %+v", ch)
	}
	if orig := kv(t, old, "k"); len(orig) != 1 || !orig[tags.NewSet("HL2")].Equal(str("V1")) {
		t.Fatal("MergeEntity modified its input")
	}
}

func TestMergeEntity_EndToEnd(t *testing.T) {
	t.Parallel()

	db := withKV(&entity.Entity{Classname: "x", Kind: entity.KindPoint}, "k",
		entity.Alternatives{tags.NewSet("HL2"): str("V1")})

	afterEP1, _ := merge.MergeEntity(db, newEnt(map[string]string{"k": "V1"}), "EP1")
	afterEP2, _ := merge.MergeEntity(afterEP1, newEnt(map[string]string{"k": "V2"}), "EP2")

	want := entity.Alternatives{
		tags.NewSet("EP1", "HL2"): str("V1"),
		tags.NewSet("EP2"):        str("V2"),
	}
	if diff := cmp.Diff(want, kv(t, afterEP2, "k"), entityOpts); diff != "" {
		t.Fatalf("k mismatch (-want +got):\n%s", diff)
	}
	if want := []string{"EP1", "EP2"}; !slices.Equal(afterEP2.Helpers[0].Args, want) {
		t.Fatalf("AppliesTo: expected %v, got %v", want, afterEP2.Helpers[0].Args)
	}
}

func TestMergeEntity_UniversalNotDuplicated(t *testing.T) {
	t.Parallel()

	old := withKV(&entity.Entity{Classname: "x", Kind: entity.KindPoint}, "k", entity.Universal(str("V")))
	got, ch := merge.MergeEntity(old, newEnt(map[string]string{"k": "V"}), "TF2")

	if diff := cmp.Diff(entity.Universal(str("V")), kv(t, got, "k"), entityOpts); diff != "" {
		t.Fatalf("k mismatch (-want +got):\n%s", diff)
	}
	if ch.Widened != 0 || ch.Added != 0 {
		t.Fatalf("Changes: expected nothing, got %+v", ch)
	}
}

func TestMergeEntity_NegatesAndRestores(t *testing.T) {
	t.Parallel()

	old := &entity.Entity{Classname: "x", Kind: entity.KindPoint}
	withKV(old, "keep", entity.Alternatives{tags.NewSet("HL2"): str("a")})
	withKV(old, "gone", entity.Alternatives{tags.NewSet("HL2"): str("b")})

	negated, ch := merge.MergeEntity(old, newEnt(map[string]string{"keep": "a"}), "EP1")
	if ch.Negated != 1 {
		t.Fatalf("Changes: expected 1 negated key, got %+v", ch)
	}
	want := entity.Alternatives{tags.NewSet("HL2", "!EP1"): str("b")}
	if diff := cmp.Diff(want, kv(t, negated, "gone"), entityOpts); diff != "" {
		t.Fatalf("gone after negation (-want +got):\n%s", diff)
	}

	restored, _ := merge.MergeEntity(negated, newEnt(map[string]string{"keep": "a", "gone": "b"}), "EP1")
	want = entity.Alternatives{tags.NewSet("EP1", "HL2"): str("b")}
	if diff := cmp.Diff(want, kv(t, restored, "gone"), entityOpts); diff != "" {
		t.Fatalf("gone after restore (-want +got):\n%s", diff)
	}
}

func TestMergeEntity_Idempotent(t *testing.T) {
	t.Parallel()

	old := &entity.Entity{
		Classname: "x",
		Kind:      entity.KindPoint,
		Desc:      "Old text.",
		Bases:     []string{"Targetname"},
		Helpers:   []entity.Helper{{Kind: entity.HelperAppliesTo, Args: []string{"HL2"}}},
	}
	withKV(old, "a", entity.Alternatives{tags.NewSet("HL2"): str("1")})
	withKV(old, "b", entity.Universal(str("2")))
	withKV(old, "c", entity.Alternatives{tags.NewSet("HL2"): str("3")})

	upd := newEnt(map[string]string{"a": "1", "b": "9", "d": "4"})
	upd.Desc = "New text."
	upd.Bases = []string{"Targetname", "Parentname"}
	upd.Helpers = []entity.Helper{{Kind: entity.HelperIconSprite, Args: []string{"editor/x.vmt"}}}

	once, _ := merge.MergeEntity(old, upd, "EP2")
	twice, _ := merge.MergeEntity(once, upd, "EP2")

	if diff := cmp.Diff(once, twice, entityOpts); diff != "" {
		t.Fatalf("second merge changed the entity (-once +twice):\n%s", diff)
	}
	if once.Desc != "Old text.|||New text." {
		t.Fatalf("Desc: got %q", once.Desc)
	}
	if want := []string{"Targetname", "Parentname"}; !slices.Equal(once.Bases, want) {
		t.Fatalf("Bases: expected %v, got %v", want, once.Bases)
	}
	if len(once.Helpers) != 2 {
		t.Fatalf("Helpers: expected appliesto plus iconsprite, got %v", once.Helpers)
	}
}

func TestMergeEntity_DescriptionAppend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		old  string
		upd  string
		want string
	}{
		{name: "joined", old: "Old.", upd: "New.", want: "Old.|||New."},
		{name: "already contained", old: "Old. New.", upd: "New.", want: "Old. New."},
		{name: "empty update", old: "Old.", upd: "", want: "Old."},
		{name: "empty old", old: "", upd: "New.", want: "|||New."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old := &entity.Entity{Classname: "x", Kind: entity.KindPoint, Desc: tc.old}
			upd := &entity.Entity{Classname: "x", Kind: entity.KindPoint, Desc: tc.upd}
			got, _ := merge.MergeEntity(old, upd, "HL2")
			if got.Desc != tc.want {
				t.Fatalf("Desc: expected %q, got %q", tc.want, got.Desc)
			}
		})
	}
}

func TestMergeEntity_NewKeyTaggedWithEngine(t *testing.T) {
	t.Parallel()

	old := &entity.Entity{Classname: "x", Kind: entity.KindPoint}
	upd := &entity.Entity{Classname: "x", Kind: entity.KindPoint}
	upd.Outputs.Set("OnFire", entity.Universal(entity.Definition{Kind: entity.ValueVoid}))

	got, ch := merge.MergeEntity(old, upd, "p2")
	alts, ok := got.Outputs.Get("OnFire")
	if !ok {
		t.Fatal("OnFire missing")
	}
	if _, ok := alts[tags.NewSet("P2")]; !ok || len(alts) != 1 {
		t.Fatalf("OnFire: expected single {P2} alternative, got %v", alts)
	}
	if ch.Added != 1 {
		t.Fatalf("Changes: expected 1 added, got %+v", ch)
	}
}

func TestMergeEntity_CollisionKeepsImportedValue(t *testing.T) {
	t.Parallel()

	old := withKV(&entity.Entity{Classname: "x", Kind: entity.KindPoint}, "k", entity.Alternatives{
		tags.NewSet("EP2"): str("stale"),
	})
	got, ch := merge.MergeEntity(old, newEnt(map[string]string{"k": "fresh"}), "EP2")

	if def := kv(t, got, "k")[tags.NewSet("EP2")]; !def.Equal(str("fresh")) {
		t.Fatalf("k{EP2}: expected fresh, got %v", def)
	}
	if len(ch.Collisions) != 1 {
		t.Fatalf("Changes: expected 1 collision, got %+v", ch)
	}
}
