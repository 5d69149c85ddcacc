package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/pkg/tags"
)

// Magic prefixes every decompressed binary stream. It is followed by one
// version byte and then by length-prefixed records: a header record and one
// record per entity, all in protobuf wire format.
var Magic = []byte("ENTDB")

// BinaryVersion is the record layout written by [Binary].
const BinaryVersion byte = 1

// ErrBadMagic is returned by [ReadBinary] for streams that are not entity
// databases.
var ErrBadMagic = errors.New("sink: not a binary entity database")

var errWireType = errors.New("sink: unexpected wire type")

// Field numbers of the record layout.
const (
	headerMapMin protowire.Number = 1
	headerMapMax protowire.Number = 2
	headerCount  protowire.Number = 3

	entClassname protowire.Number = 1
	entKind      protowire.Number = 2
	entDesc      protowire.Number = 3
	entBase      protowire.Number = 4
	entHelper    protowire.Number = 5
	entKeyValue  protowire.Number = 6 // inputs 7, outputs 8

	helperKind protowire.Number = 1
	helperArg  protowire.Number = 2

	keyName protowire.Number = 1
	keyDef  protowire.Number = 2

	defType       protowire.Number = 1
	defDisplay    protowire.Number = 2
	defDesc       protowire.Number = 3
	defDefault    protowire.Number = 4
	defReadOnly   protowire.Number = 5
	defReportable protowire.Number = 6
	defChoice     protowire.Number = 7
	defFlag       protowire.Number = 8

	choiceValue protowire.Number = 1
	choiceName  protowire.Number = 2

	flagBit     protowire.Number = 1
	flagName    protowire.Number = 2
	flagDefault protowire.Number = 3
)

// Binary writes the database as an LZMA stream of records. Every key must
// already be flattened to one universal definition. Choice and flag tags are
// not written.
type Binary struct{}

// Write implements [Sink].
func (Binary) Write(w io.Writer, db *entity.Database) error {
	var raw bytes.Buffer
	raw.Write(Magic)
	raw.WriteByte(BinaryVersion)

	var h []byte
	h = appendVarint(h, headerMapMin, protowire.EncodeZigZag(int64(db.MapSizeMin)))
	h = appendVarint(h, headerMapMax, protowire.EncodeZigZag(int64(db.MapSizeMax)))
	h = appendVarint(h, headerCount, uint64(db.Len()))
	raw.Write(protowire.AppendBytes(nil, h))

	for _, e := range db.List() {
		rec, err := encodeEntity(e)
		if err != nil {
			return err
		}
		raw.Write(protowire.AppendBytes(nil, rec))
	}

	zw, err := lzma.NewWriter(w)
	if err != nil {
		return fmt.Errorf("sink: lzma writer: %w", err)
	}
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return fmt.Errorf("sink: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("sink: compress: %w", err)
	}
	return nil
}

func encodeEntity(e *entity.Entity) ([]byte, error) {
	var b []byte
	b = appendString(b, entClassname, e.Classname)
	b = appendString(b, entKind, string(e.Kind))
	if e.Desc != "" {
		b = appendString(b, entDesc, e.Desc)
	}
	for _, base := range e.Bases {
		b = appendString(b, entBase, base)
	}
	for _, h := range e.Helpers {
		hb := appendString(nil, helperKind, string(h.Kind))
		for _, a := range h.Args {
			hb = appendString(hb, helperArg, a)
		}
		b = appendMessage(b, entHelper, hb)
	}
	for ci, cat := range e.Categories() {
		for _, name := range cat.Names() {
			alts, _ := cat.Get(name)
			def, ok := alts[tags.Set{}]
			if !ok || len(alts) != 1 {
				return nil, fmt.Errorf("sink: %s %s.%s has %d tagged alternatives, export it first",
					e.Classname, entity.CategoryNames[ci], name, len(alts))
			}
			kb := appendString(nil, keyName, name)
			kb = appendMessage(kb, keyDef, encodeDefinition(def))
			b = appendMessage(b, entKeyValue+protowire.Number(ci), kb)
		}
	}
	return b, nil
}

func encodeDefinition(d entity.Definition) []byte {
	b := appendString(nil, defType, string(d.Kind))
	if d.DisplayName != "" {
		b = appendString(b, defDisplay, d.DisplayName)
	}
	if d.Desc != "" {
		b = appendString(b, defDesc, d.Desc)
	}
	if d.Default != "" {
		b = appendString(b, defDefault, d.Default)
	}
	if d.ReadOnly {
		b = appendVarint(b, defReadOnly, 1)
	}
	if d.Reportable {
		b = appendVarint(b, defReportable, 1)
	}
	for _, c := range d.Choices {
		cb := appendString(nil, choiceValue, c.Value)
		cb = appendString(cb, choiceName, c.Name)
		b = appendMessage(b, defChoice, cb)
	}
	for _, f := range d.Flags {
		fb := appendVarint(nil, flagBit, uint64(f.Bit))
		fb = appendString(fb, flagName, f.Name)
		if f.Default {
			fb = appendVarint(fb, flagDefault, 1)
		}
		b = appendMessage(b, defFlag, fb)
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// ── Decoding ─────────────────────────────────────────────────────────────────

// ReadBinary decodes a stream written by [Binary].
func ReadBinary(r io.Reader) (*entity.Database, error) {
	zr, err := lzma.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("sink: lzma reader: %w", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("sink: decompress: %w", err)
	}
	if !bytes.HasPrefix(data, Magic) {
		return nil, ErrBadMagic
	}
	data = data[len(Magic):]
	if len(data) == 0 || data[0] != BinaryVersion {
		return nil, fmt.Errorf("sink: unsupported binary version")
	}
	data = data[1:]

	header, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, fmt.Errorf("sink: header: %w", protowire.ParseError(n))
	}
	data = data[n:]

	db := entity.NewDatabase()
	var count uint64
	err = eachField(header, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64
		switch num {
		case headerMapMin:
			n, err := consumeVarint(typ, b, &v)
			db.MapSizeMin = int(protowire.DecodeZigZag(v))
			return n, err
		case headerMapMax:
			n, err := consumeVarint(typ, b, &v)
			db.MapSizeMax = int(protowire.DecodeZigZag(v))
			return n, err
		case headerCount:
			return consumeVarint(typ, b, &count)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, fmt.Errorf("sink: header: %w", err)
	}

	for len(data) > 0 {
		rec, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("sink: record %d: %w", db.Len(), protowire.ParseError(n))
		}
		data = data[n:]
		e, err := decodeEntity(rec)
		if err != nil {
			return nil, fmt.Errorf("sink: record %d: %w", db.Len(), err)
		}
		if err := db.Add(e); err != nil {
			return nil, fmt.Errorf("sink: %w", err)
		}
	}
	if uint64(db.Len()) != count {
		return nil, fmt.Errorf("sink: expected %d entities, found %d", count, db.Len())
	}
	return db, nil
}

func decodeEntity(rec []byte) (*entity.Entity, error) {
	e := &entity.Entity{}
	err := eachField(rec, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case entClassname:
			return consumeString(typ, b, &e.Classname)
		case entKind:
			var s string
			n, err := consumeString(typ, b, &s)
			e.Kind = entity.Kind(s)
			return n, err
		case entDesc:
			return consumeString(typ, b, &e.Desc)
		case entBase:
			var s string
			n, err := consumeString(typ, b, &s)
			e.Bases = append(e.Bases, s)
			return n, err
		case entHelper:
			msg, n, err := consumeMessage(typ, b)
			if err != nil {
				return n, err
			}
			h, err := decodeHelper(msg)
			e.Helpers = append(e.Helpers, h)
			return n, err
		case entKeyValue, entKeyValue + 1, entKeyValue + 2:
			msg, n, err := consumeMessage(typ, b)
			if err != nil {
				return n, err
			}
			name, def, err := decodeKey(msg)
			if err != nil {
				return n, err
			}
			e.Categories()[num-entKeyValue].Set(name, entity.Universal(def))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	if err := entity.Validate(e); err != nil {
		return nil, err
	}
	return e, nil
}

func decodeHelper(msg []byte) (entity.Helper, error) {
	var h entity.Helper
	err := eachField(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case helperKind:
			var s string
			n, err := consumeString(typ, b, &s)
			h.Kind = entity.HelperKind(s)
			return n, err
		case helperArg:
			var s string
			n, err := consumeString(typ, b, &s)
			h.Args = append(h.Args, s)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return h, err
}

func decodeKey(msg []byte) (name string, def entity.Definition, err error) {
	err = eachField(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case keyName:
			return consumeString(typ, b, &name)
		case keyDef:
			m, n, err := consumeMessage(typ, b)
			if err != nil {
				return n, err
			}
			def, err = decodeDefinition(m)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return name, def, err
}

func decodeDefinition(msg []byte) (entity.Definition, error) {
	var d entity.Definition
	err := eachField(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			s string
			v uint64
		)
		switch num {
		case defType:
			n, err := consumeString(typ, b, &s)
			d.Kind = entity.ValueKind(s)
			return n, err
		case defDisplay:
			return consumeString(typ, b, &d.DisplayName)
		case defDesc:
			return consumeString(typ, b, &d.Desc)
		case defDefault:
			return consumeString(typ, b, &d.Default)
		case defReadOnly:
			n, err := consumeVarint(typ, b, &v)
			d.ReadOnly = v != 0
			return n, err
		case defReportable:
			n, err := consumeVarint(typ, b, &v)
			d.Reportable = v != 0
			return n, err
		case defChoice:
			m, n, err := consumeMessage(typ, b)
			if err != nil {
				return n, err
			}
			var c entity.Choice
			err = eachField(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case choiceValue:
					return consumeString(typ, b, &c.Value)
				case choiceName:
					return consumeString(typ, b, &c.Name)
				}
				return protowire.ConsumeFieldValue(num, typ, b), nil
			})
			d.Choices = append(d.Choices, c)
			return n, err
		case defFlag:
			m, n, err := consumeMessage(typ, b)
			if err != nil {
				return n, err
			}
			var f entity.Flag
			err = eachField(m, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case flagBit:
					n, err := consumeVarint(typ, b, &v)
					f.Bit = int(v)
					return n, err
				case flagName:
					return consumeString(typ, b, &f.Name)
				case flagDefault:
					n, err := consumeVarint(typ, b, &v)
					f.Default = v != 0
					return n, err
				}
				return protowire.ConsumeFieldValue(num, typ, b), nil
			})
			d.Flags = append(d.Flags, f)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return d, err
}

// eachField calls fn for every field of msg. fn returns the number of bytes
// of b it consumed, or a negative protowire error code.
func eachField(msg []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return protowire.ParseError(n)
		}
		msg = msg[n:]
		m, err := fn(num, typ, msg)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		msg = msg[m:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, errWireType
	}
	v, n := protowire.ConsumeString(b)
	*dst = v
	return n, nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	*dst = v
	return n, nil
}

func consumeMessage(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}
