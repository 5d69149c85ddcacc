package entity

import (
	"maps"
	"slices"
)

// Category is an insertion-ordered mapping from key name to the tagged
// alternatives declared for it. The zero value is an empty category.
type Category struct {
	names []string
	alts  map[string]Alternatives
}

// Len reports the number of keys.
func (c *Category) Len() int { return len(c.names) }

// Names returns the key names in declaration order.
func (c *Category) Names() []string { return slices.Clone(c.names) }

// Has reports whether name is declared.
func (c *Category) Has(name string) bool {
	_, ok := c.alts[name]
	return ok
}

// Get returns the alternatives for name.
func (c *Category) Get(name string) (Alternatives, bool) {
	a, ok := c.alts[name]
	return a, ok
}

// Set stores alternatives for name. A new name is appended to the order.
func (c *Category) Set(name string, a Alternatives) {
	if c.alts == nil {
		c.alts = make(map[string]Alternatives)
	}
	if _, ok := c.alts[name]; !ok {
		c.names = append(c.names, name)
	}
	c.alts[name] = a
}

// Delete removes name.
func (c *Category) Delete(name string) {
	if _, ok := c.alts[name]; !ok {
		return
	}
	delete(c.alts, name)
	c.names = slices.DeleteFunc(c.names, func(n string) bool { return n == name })
}

// Clone returns a deep copy of c.
func (c Category) Clone() Category {
	out := Category{names: slices.Clone(c.names)}
	if c.alts != nil {
		out.alts = make(map[string]Alternatives, len(c.alts))
		for k, v := range c.alts {
			out.alts[k] = v.Clone()
		}
	}
	return out
}

// Equal reports whether c and o declare the same keys, in the same order,
// with equal alternatives.
func (c *Category) Equal(o *Category) bool {
	if !slices.Equal(c.names, o.names) {
		return false
	}
	for name, a := range c.alts {
		b, ok := o.alts[name]
		if !ok || !maps.EqualFunc(a, b, Definition.Equal) {
			return false
		}
	}
	return true
}
