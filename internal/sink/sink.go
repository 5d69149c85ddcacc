// Package sink writes a projected [entity.Database] in its final form.
//
// [Text] emits a YAML document for editors and for reviewing as a diff.
// [Binary] emits a compact LZMA-compressed record stream which [ReadBinary]
// decodes again.
package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/entunify/internal/entity"
)

// Sink serialises a database to w.
type Sink interface {
	Write(w io.Writer, db *entity.Database) error
}

// Compile-time assertions.
var (
	_ Sink = Text{}
	_ Sink = Binary{}
)

// MapSize is the editor grid bounds.
type MapSize struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// TextDocument is the structure written by [Text].
type TextDocument struct {
	MapSize  MapSize            `yaml:"map_size"`
	Entities []entity.EntityDoc `yaml:"entities"`
}

// Text writes the database as YAML, entities sorted by classname.
type Text struct{}

// Write implements [Sink].
func (Text) Write(w io.Writer, db *entity.Database) error {
	doc := TextDocument{
		MapSize:  MapSize{Min: db.MapSizeMin, Max: db.MapSizeMax},
		Entities: make([]entity.EntityDoc, 0, db.Len()),
	}
	for _, e := range db.List() {
		doc.Entities = append(doc.Entities, entity.ToDoc(e))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("sink: encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteFile writes db to path with s, creating parent directories. Nothing
// is written when encoding fails.
func WriteFile(path string, s Sink, db *entity.Database) error {
	var buf bytes.Buffer
	if err := s.Write(&buf, db); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sink: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("sink: write %s: %w", path, err)
	}
	return nil
}
