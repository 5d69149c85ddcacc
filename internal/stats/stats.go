// Package stats summarises an entity database per release.
package stats

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/pkg/tags"
)

// AllReleases is the row label for entities available in every release seen.
const AllReleases = "ALL"

// Row is the entity count of one release.
type Row struct {
	Release string
	Base    int
	Point   int
	Brush   int
}

// BaseUse lists the entities inheriting from one base.
type BaseUse struct {
	Classname string
	Users     []string
}

// Table is the result of [Count].
type Table struct {
	// Releases are the releases mentioned by any AppliesTo helper, in
	// vocabulary order.
	Releases []string

	// Rows starts with the [AllReleases] row, followed by one row per
	// release.
	Rows []Row

	// Bases lists every base declaring at least one key, least used first.
	Bases []BaseUse
}

// Count tallies base, point and brush entities per release. An entity
// selected by every release seen is counted once under [AllReleases] instead.
// Worlds and the point-like kinds count as point entities.
func Count(db *entity.Database, vocab *tags.Vocabulary) Table {
	ents := db.List()

	seen := make(map[string]bool)
	for _, e := range ents {
		for _, tag := range appliesTo(e).Tags() {
			if r, ok := vocab.Release(tags.Bare(tag)); ok {
				seen[r] = true
			}
		}
	}
	var t Table
	for _, r := range vocab.Releases() {
		if seen[r.Name] {
			t.Releases = append(t.Releases, r.Name)
		}
	}

	rows := make(map[string]*Row, len(t.Releases)+1)
	row := func(name string) *Row {
		if r, ok := rows[name]; ok {
			return r
		}
		r := &Row{Release: name}
		rows[name] = r
		return r
	}
	row(AllReleases)
	for _, r := range t.Releases {
		row(r)
	}

	users := make(map[string][]string)
	for _, e := range ents {
		if e.IsBase() {
			if _, ok := users[strings.ToLower(e.Classname)]; !ok {
				users[strings.ToLower(e.Classname)] = nil
			}
		}
		for _, b := range e.Bases {
			users[strings.ToLower(b)] = append(users[strings.ToLower(b)], e.Classname)
		}

		at := appliesTo(e)
		var in []string
		for _, r := range t.Releases {
			if vocab.Selects(tags.NewSet(r), at) {
				in = append(in, r)
			}
		}
		if len(in) == len(t.Releases) {
			in = []string{AllReleases}
		}
		for _, r := range in {
			bump(row(r), e.Kind)
		}
	}

	t.Rows = append(t.Rows, *rows[AllReleases])
	for _, r := range t.Releases {
		t.Rows = append(t.Rows, *rows[r])
	}

	for name, us := range users {
		b, err := db.Get(name)
		if err != nil || !b.IsBase() || !hasKeys(b) {
			continue
		}
		slices.Sort(us)
		t.Bases = append(t.Bases, BaseUse{Classname: b.Classname, Users: us})
	}
	slices.SortFunc(t.Bases, func(a, b BaseUse) int {
		return cmp.Or(cmp.Compare(len(a.Users), len(b.Users)), cmp.Compare(a.Classname, b.Classname))
	})
	return t
}

func appliesTo(e *entity.Entity) tags.Set {
	var args []string
	for _, h := range e.Helpers {
		if h.Kind == entity.HelperAppliesTo {
			args = append(args, h.Args...)
		}
	}
	return tags.NewSet(args...)
}

func bump(r *Row, k entity.Kind) {
	switch k {
	case entity.KindBase:
		r.Base++
	case entity.KindBrush:
		r.Brush++
	default:
		r.Point++
	}
}

func hasKeys(e *entity.Entity) bool {
	for _, c := range e.Categories() {
		if c.Len() > 0 {
			return true
		}
	}
	return false
}

// ── Rendering ────────────────────────────────────────────────────────────────

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	nameStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func styleFunc(row, col int) lipgloss.Style {
	switch {
	case row == table.HeaderRow:
		return headerStyle
	case col == 0:
		return nameStyle
	}
	return cellStyle
}

// Render formats the per-release counts as a bordered table.
func (t Table) Render() string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(styleFunc).
		Headers("Release", "Base", "Point", "Brush")
	for _, r := range t.Rows {
		tbl.Row(r.Release, strconv.Itoa(r.Base), strconv.Itoa(r.Point), strconv.Itoa(r.Brush))
	}
	return tbl.String()
}

// RenderBases formats base usage. A base with a single user names it.
func (t Table) RenderBases() string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(styleFunc).
		Headers("Base", "Uses", "Used by")
	for _, b := range t.Bases {
		by := "..."
		switch len(b.Users) {
		case 0:
			by = "-"
		case 1:
			by = b.Users[0]
		}
		tbl.Row(b.Classname, strconv.Itoa(len(b.Users)), by)
	}
	return tbl.String()
}
