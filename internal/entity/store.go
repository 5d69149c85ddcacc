package entity

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrNotFound is returned by Get and Remove when the requested classname does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrDuplicateID is returned by Add when an entity with the same classname already exists.
var ErrDuplicateID = errors.New("entity with that classname already exists")

// Default bounds of the editor grid.
const (
	DefaultMapSizeMin = -16384
	DefaultMapSizeMax = 16384
)

// Database is the in-memory entity database keyed by case-insensitive
// classname. The zero value is not usable; call [NewDatabase].
type Database struct {
	// MapSizeMin and MapSizeMax bound the editor grid written on export.
	MapSizeMin int
	MapSizeMax int

	entities map[string]*Entity
}

// NewDatabase returns an empty database with default map bounds.
func NewDatabase() *Database {
	return &Database{
		MapSizeMin: DefaultMapSizeMin,
		MapSizeMax: DefaultMapSizeMax,
		entities:   make(map[string]*Entity),
	}
}

func dbKey(classname string) string { return strings.ToLower(classname) }

// Add stores e. Returns [ErrDuplicateID] if the classname is taken.
func (d *Database) Add(e *Entity) error {
	if e.Classname == "" {
		return fmt.Errorf("entity: add: classname must not be empty")
	}
	k := dbKey(e.Classname)
	if _, exists := d.entities[k]; exists {
		return fmt.Errorf("entity: add %q: %w", e.Classname, ErrDuplicateID)
	}
	d.entities[k] = e
	return nil
}

// Put stores e, replacing any entity with the same classname.
func (d *Database) Put(e *Entity) {
	d.entities[dbKey(e.Classname)] = e
}

// Get retrieves an entity by classname.
// Returns [ErrNotFound] when no entity with that classname exists.
func (d *Database) Get(classname string) (*Entity, error) {
	e, ok := d.entities[dbKey(classname)]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Has reports whether classname is present.
func (d *Database) Has(classname string) bool {
	_, ok := d.entities[dbKey(classname)]
	return ok
}

// Remove deletes an entity by classname.
// Returns [ErrNotFound] when no entity with that classname exists.
func (d *Database) Remove(classname string) error {
	k := dbKey(classname)
	if _, ok := d.entities[k]; !ok {
		return ErrNotFound
	}
	delete(d.entities, k)
	return nil
}

// Len reports the number of entities.
func (d *Database) Len() int { return len(d.entities) }

// List returns all entities sorted by lower-cased classname.
func (d *Database) List() []*Entity {
	keys := slices.Sorted(maps.Keys(d.entities))
	out := make([]*Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, d.entities[k])
	}
	return out
}

// Clone returns a deep copy of d.
func (d *Database) Clone() *Database {
	out := &Database{
		MapSizeMin: d.MapSizeMin,
		MapSizeMax: d.MapSizeMax,
		entities:   make(map[string]*Entity, len(d.entities)),
	}
	for k, e := range d.entities {
		out.entities[k] = e.Clone()
	}
	return out
}
