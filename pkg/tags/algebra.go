package tags

import "strings"

// Expand returns the closure of s: every release tag adds SINCE_<r> for each
// release up to and including it, UNTIL_<r> for each later release, and the
// features bundled with it. Unknown tokens are kept untouched. Expand is
// idempotent.
func (v *Vocabulary) Expand(s Set) Set {
	in := s.Tags()
	out := make([]string, 0, len(in)+len(v.releases))
	out = append(out, in...)
	for _, tag := range in {
		up := strings.ToUpper(tag)
		out = append(out, v.features[up]...)
		pos, ok := v.position[up]
		if !ok {
			continue
		}
		for i, r := range v.releases {
			if i <= pos {
				out = append(out, SincePrefix+r.Name)
			} else {
				out = append(out, UntilPrefix+r.Name)
			}
		}
	}
	return NewSet(out...)
}

// Selects reports whether a candidate tag set (typically an entity's AppliesTo
// list) is compatible with the requested tags once those are expanded.
func (v *Vocabulary) Selects(requested, candidate Set) bool {
	return Match(v.Expand(upper(requested)), candidate)
}

// Toggle modifies s so that it allows newTag.
//
// A negated tag ("!X" or "-X") removes the bare token and is inserted
// verbatim. A positive tag removes any negated form of its upper-cased token
// and is inserted upper-cased, unless a "+X" guard is already present.
func Toggle(s Set, newTag string) Set {
	if isNegated(newTag) {
		bare := newTag[1:]
		return s.Without(bare, strings.ToUpper(bare)).With(newTag)
	}
	up := strings.ToUpper(newTag)
	out := s.Without("!"+up, "-"+up)
	if !out.Has("+" + up) {
		out = out.With(up)
	}
	return out
}

// Match is the shared compatibility predicate between a search set (already
// expanded, upper-case) and a candidate tag set:
//
//   - every "!X" or "-X" candidate tag must be absent from search;
//   - every "+X" candidate tag must be present in search;
//   - if the candidate has plain tags, at least one must be in search.
//
// The empty candidate matches everything.
func Match(search, candidate Set) bool {
	noPlain, hasPlain := true, false
	for _, tag := range candidate.Tags() {
		tag = strings.ToUpper(tag)
		switch tag[0] {
		case '!', '-':
			if search.Has(tag[1:]) {
				return false
			}
		case '+':
			if !search.Has(tag[1:]) {
				return false
			}
		default:
			noPlain = false
			if search.Has(tag) {
				hasPlain = true
			}
		}
	}
	return noPlain || hasPlain
}

// Bare strips a leading !, - or + from tag.
func Bare(tag string) string {
	if tag != "" && strings.ContainsRune("!-+", rune(tag[0])) {
		return tag[1:]
	}
	return tag
}

func isNegated(tag string) bool {
	return strings.HasPrefix(tag, "!") || strings.HasPrefix(tag, "-")
}

func upper(s Set) Set {
	in := s.Tags()
	for i, t := range in {
		in[i] = strings.ToUpper(t)
	}
	return NewSet(in...)
}
