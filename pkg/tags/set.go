package tags

import (
	"slices"
	"strings"
)

// Set is an immutable set of tag tokens. The zero value is the empty set,
// which qualifies a definition as applying universally.
//
// Set is comparable and may be used as a map key: two sets holding the same
// tokens always compare equal because the tokens are stored in canonical
// sorted order. Tokens never contain commas or whitespace.
type Set struct {
	key string
}

// NewSet builds a Set from tokens. Surrounding whitespace is trimmed, empty
// tokens are dropped and duplicates collapse. Case is preserved.
func NewSet(tokens ...string) Set {
	if len(tokens) == 0 {
		return Set{}
	}
	clean := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		clean = append(clean, t)
	}
	slices.Sort(clean)
	clean = slices.Compact(clean)
	return Set{key: strings.Join(clean, ",")}
}

// Tags returns the tokens in canonical order. The slice is freshly allocated.
func (s Set) Tags() []string {
	if s.key == "" {
		return nil
	}
	return strings.Split(s.key, ",")
}

// Len reports the number of tokens in s.
func (s Set) Len() int {
	if s.key == "" {
		return 0
	}
	return strings.Count(s.key, ",") + 1
}

// IsEmpty reports whether s has no tokens.
func (s Set) IsEmpty() bool { return s.key == "" }

// IsZero lets encoders honour omitempty.
func (s Set) IsZero() bool { return s.key == "" }

// Has reports whether tag is a member of s (exact, case-sensitive).
func (s Set) Has(tag string) bool {
	if s.key == "" || tag == "" {
		return false
	}
	return slices.Contains(s.Tags(), tag)
}

// With returns a copy of s with tokens added.
func (s Set) With(tokens ...string) Set {
	return NewSet(append(s.Tags(), tokens...)...)
}

// Without returns a copy of s with tokens removed.
func (s Set) Without(tokens ...string) Set {
	cur := s.Tags()
	out := cur[:0]
	for _, t := range cur {
		if !slices.Contains(tokens, t) {
			out = append(out, t)
		}
	}
	return NewSet(out...)
}

// Key returns the canonical comma-joined form, used as a stable sort key.
func (s Set) Key() string { return s.key }

// String renders s for humans, e.g. "{EP1, HL2}".
func (s Set) String() string {
	return "{" + strings.Join(s.Tags(), ", ") + "}"
}

// Less orders sets by size first, then by canonical key.
func Less(a, b Set) bool {
	if la, lb := a.Len(), b.Len(); la != lb {
		return la < lb
	}
	return a.key < b.key
}

// Compare is the three-way form of [Less], suitable for slices.SortFunc.
func Compare(a, b Set) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	}
	return 0
}

// MarshalYAML encodes the set as a flow-style list of tokens.
func (s Set) MarshalYAML() (any, error) {
	if s.IsEmpty() {
		return []string{}, nil
	}
	return s.Tags(), nil
}

// UnmarshalYAML decodes a list of tokens. A single scalar is accepted too.
func (s *Set) UnmarshalYAML(unmarshal func(any) error) error {
	var list []string
	if err := unmarshal(&list); err != nil {
		var one string
		if err2 := unmarshal(&one); err2 != nil {
			return err
		}
		list = strings.Fields(strings.ReplaceAll(one, ",", " "))
	}
	*s = NewSet(list...)
	return nil
}
