package entity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/entunify/pkg/tags"
)

// FragmentFile is the top-level structure of a fragment YAML file.
//
// A key holding one universal definition is written inline; anything else is
// written as a list of tagged alternatives.
//
// Example:
//
//	entities:
//	  - classname: env_beam
//	    kind: point
//	    helpers:
//	      - kind: appliesto
//	        args: [EP1, EP2, HL2]
//	    keyvalues:
//	      - name: life
//	        type: float
//	        default: "0"
//	      - name: damage
//	        alternatives:
//	          - tags: [HL2]
//	            type: integer
//	          - tags: [EP1, EP2]
//	            type: float
type FragmentFile struct {
	Entities []EntityDoc `yaml:"entities"`
}

// EntityDoc is the serialized form of an [Entity].
type EntityDoc struct {
	Classname   string   `yaml:"classname"`
	Kind        Kind     `yaml:"kind"`
	Description string   `yaml:"description,omitempty"`
	Bases       []string `yaml:"bases,omitempty,flow"`
	Helpers     []Helper `yaml:"helpers,omitempty"`
	KeyValues   []KeyDoc `yaml:"keyvalues,omitempty"`
	Inputs      []KeyDoc `yaml:"inputs,omitempty"`
	Outputs     []KeyDoc `yaml:"outputs,omitempty"`
}

// KeyDoc is the serialized form of one category entry.
type KeyDoc struct {
	Name         string           `yaml:"name"`
	Def          Definition       `yaml:",inline"`
	Alternatives []AlternativeDoc `yaml:"alternatives,omitempty"`
}

// AlternativeDoc is one tagged definition of a [KeyDoc].
type AlternativeDoc struct {
	Tags tags.Set   `yaml:"tags,flow"`
	Def  Definition `yaml:",inline"`
}

// ToDoc converts e into its serialized form. Keys keep declaration order;
// alternatives are ordered by tag set.
func ToDoc(e *Entity) EntityDoc {
	doc := EntityDoc{
		Classname:   e.Classname,
		Kind:        e.Kind,
		Description: e.Desc,
		Bases:       e.Bases,
		Helpers:     e.Helpers,
	}
	dst := []*[]KeyDoc{&doc.KeyValues, &doc.Inputs, &doc.Outputs}
	for i, cat := range e.Categories() {
		for _, name := range cat.Names() {
			alts, _ := cat.Get(name)
			*dst[i] = append(*dst[i], keyToDoc(name, alts))
		}
	}
	return doc
}

func keyToDoc(name string, alts Alternatives) KeyDoc {
	if def, ok := alts[tags.Set{}]; ok && len(alts) == 1 {
		return KeyDoc{Name: name, Def: def}
	}
	kd := KeyDoc{Name: name}
	for _, alt := range alts.Sorted() {
		kd.Alternatives = append(kd.Alternatives, AlternativeDoc{Tags: alt.Tags, Def: alt.Def})
	}
	return kd
}

// FromDoc converts a serialized entity back into an [Entity] and validates it.
func FromDoc(doc EntityDoc) (*Entity, error) {
	e := &Entity{
		Classname: doc.Classname,
		Kind:      doc.Kind,
		Desc:      doc.Description,
		Bases:     doc.Bases,
		Helpers:   doc.Helpers,
	}
	var errs []error
	src := [][]KeyDoc{doc.KeyValues, doc.Inputs, doc.Outputs}
	for i, cat := range e.Categories() {
		for _, kd := range src[i] {
			alts, err := keyFromDoc(kd)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", CategoryNames[i], kd.Name, err))
				continue
			}
			if cat.Has(kd.Name) {
				errs = append(errs, fmt.Errorf("%s.%s: declared twice", CategoryNames[i], kd.Name))
				continue
			}
			cat.Set(kd.Name, alts)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("entity %q: %w", doc.Classname, err)
	}
	if err := Validate(e); err != nil {
		return nil, fmt.Errorf("entity %q: %w", doc.Classname, err)
	}
	return e, nil
}

func keyFromDoc(kd KeyDoc) (Alternatives, error) {
	if kd.Name == "" {
		return nil, errors.New("name must not be empty")
	}
	if len(kd.Alternatives) == 0 {
		return Universal(kd.Def), nil
	}
	if !kd.Def.Equal(Definition{}) {
		return nil, errors.New("inline definition and alternatives are mutually exclusive")
	}
	alts := make(Alternatives, len(kd.Alternatives))
	for _, ad := range kd.Alternatives {
		if _, dup := alts[ad.Tags]; dup {
			return nil, fmt.Errorf("tag set %s listed twice", ad.Tags)
		}
		alts[ad.Tags] = ad.Def
	}
	return alts, nil
}

// LoadFragmentFile reads and parses a fragment YAML file from disk.
// Returns a descriptive error if the file cannot be opened or parsed.
func LoadFragmentFile(path string) ([]*Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("entity: open fragment file %q: %w", path, err)
	}
	defer f.Close()

	ents, err := LoadFragmentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("entity: parse fragment file %q: %w", path, err)
	}
	return ents, nil
}

// LoadFragmentFromReader parses fragment YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
// An empty document yields no entities.
func LoadFragmentFromReader(r io.Reader) ([]*Entity, error) {
	var ff FragmentFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&ff); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("entity: decode fragment yaml: %w", err)
	}

	ents := make([]*Entity, 0, len(ff.Entities))
	var errs []error
	for _, doc := range ff.Entities {
		e, err := FromDoc(doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ents = append(ents, e)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return ents, nil
}

// WriteFragment encodes ents as a fragment document.
func WriteFragment(w io.Writer, ents []*Entity) error {
	ff := FragmentFile{Entities: make([]EntityDoc, 0, len(ents))}
	for _, e := range ents {
		ff.Entities = append(ff.Entities, ToDoc(e))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&ff); err != nil {
		return fmt.Errorf("entity: encode fragment yaml: %w", err)
	}
	return enc.Close()
}

// WriteFragmentFile replaces the fragment file at path with ents, creating
// parent directories as needed. The file is only touched once encoding
// succeeded.
func WriteFragmentFile(path string, ents []*Entity) error {
	var buf bytes.Buffer
	if err := WriteFragment(&buf, ents); err != nil {
		return fmt.Errorf("entity: write fragment file %q: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("entity: write fragment file %q: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("entity: write fragment file %q: %w", path, err)
	}
	return nil
}
