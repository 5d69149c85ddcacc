package tags

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler score for a "did you mean"
// suggestion.
const suggestThreshold = 0.80

// UnknownTagError reports a tag outside the vocabulary. Its message lists
// every legal tag.
type UnknownTagError struct {
	Tag        string
	Suggestion string
	Legal      string
}

func (e *UnknownTagError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid tag %q", e.Tag)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (did you mean %q?)", e.Suggestion)
	}
	b.WriteString("! Allowed tags:\n")
	b.WriteString(e.Legal)
	return b.String()
}

// Validate upper-cases raw tags and checks each against the vocabulary. A
// leading !, - or + is allowed and kept. The first unknown tag yields an
// [*UnknownTagError].
func (v *Vocabulary) Validate(raw []string) (Set, error) {
	clean := make([]string, 0, len(raw))
	for _, r := range raw {
		tag := strings.ToUpper(strings.TrimSpace(r))
		if tag == "" {
			continue
		}
		if strings.ContainsAny(tag, ", \t") {
			return Set{}, &UnknownTagError{Tag: tag, Legal: v.FormatAll()}
		}
		if bare := Bare(tag); !v.IsKnown(bare) {
			return Set{}, &UnknownTagError{
				Tag:        tag,
				Suggestion: v.Suggest(bare),
				Legal:      v.FormatAll(),
			}
		}
		clean = append(clean, tag)
	}
	return NewSet(clean...), nil
}

// Suggest returns the known tag closest to tag, or "" when nothing is close
// enough.
func (v *Vocabulary) Suggest(tag string) string {
	tag = strings.ToUpper(tag)
	best, bestScore := "", 0.0
	for _, known := range v.All() {
		if s := matchr.JaroWinkler(tag, known, false); s > bestScore {
			best, bestScore = known, s
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return best
}

// FormatAll describes every legal tag, one category per line.
func (v *Vocabulary) FormatAll() string {
	names := make([]string, len(v.releases))
	for i, r := range v.releases {
		names[i] = r.Name
	}
	return fmt.Sprintf(
		"- Releases: %s\n- SINCE_<release>\n- UNTIL_<release>\n- Features: %s\n- Special: %s\n",
		strings.Join(names, ", "),
		strings.Join(v.feature, ", "),
		strings.Join(v.special, ", "),
	)
}
