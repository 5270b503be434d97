package binread

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Magic is a constant that must appear verbatim at the start of a type or
// variant. It is either a sized integer (compared in the active byte
// order) or a byte string.
type Magic struct {
	kind  string
	width int
	bits  uint64
	bytes []byte
}

type intKind struct {
	width  int
	signed bool
}

var intKinds = map[string]intKind{
	"u8": {1, false}, "u16": {2, false}, "u32": {4, false}, "u64": {8, false},
	"i8": {1, true}, "i16": {2, true}, "i32": {4, true}, "i64": {8, true},
}

var suffixedLiteral = regexp.MustCompile(`^(-?(?:0[xX][0-9a-fA-F_]+|0[bB][01_]+|0[oO][0-7_]+|[0-9_]+))(u8|u16|u32|u64|i8|i16|i32|i64)$`)

// MagicInt builds an integer magic of kind u8..u64 or i8..i64.
func MagicInt(kind string, v int64) (*Magic, error) {
	k, ok := intKinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown magic type %q", kind)
	}
	bits := k.width * 8
	if k.signed {
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if bits < 64 && (v < lo || v > hi) {
			return nil, fmt.Errorf("magic %d out of range for %s", v, kind)
		}
	} else if v < 0 || (bits < 64 && uint64(v) >= uint64(1)<<bits) {
		return nil, fmt.Errorf("magic %d out of range for %s", v, kind)
	}
	return &Magic{kind: kind, width: k.width, bits: truncate(uint64(v), k.width)}, nil
}

func magicUint(kind string, v uint64) (*Magic, error) {
	k, ok := intKinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown magic type %q", kind)
	}
	if k.width < 8 && v >= uint64(1)<<(k.width*8) {
		return nil, fmt.Errorf("magic %#x out of range for %s", v, kind)
	}
	if k.signed && k.width == 8 && v > uint64(1<<63-1) {
		return nil, fmt.Errorf("magic %#x out of range for %s", v, kind)
	}
	return &Magic{kind: kind, width: k.width, bits: v}, nil
}

// MagicBytes builds a byte-string magic.
func MagicBytes(b []byte) *Magic {
	return &Magic{kind: "bytes", width: len(b), bytes: append([]byte(nil), b...)}
}

// ParseMagic parses a suffixed integer literal such as `0x1234u16` or
// `-1i8`. Any other text is taken as the bytes of the string.
func ParseMagic(literal string) (*Magic, error) {
	m := suffixedLiteral.FindStringSubmatch(literal)
	if m == nil {
		if literal == "" {
			return nil, fmt.Errorf("empty magic")
		}
		return MagicBytes([]byte(literal)), nil
	}

	digits, kind := strings.ReplaceAll(m[1], "_", ""), m[2]
	if strings.HasPrefix(digits, "-") {
		v, err := strconv.ParseInt(digits, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid magic %q: %w", literal, err)
		}
		return MagicInt(kind, v)
	}
	v, err := strconv.ParseUint(digits, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid magic %q: %w", literal, err)
	}
	return magicUint(kind, v)
}

func truncate(v uint64, width int) uint64 {
	if width >= 8 {
		return v
	}
	return v & (uint64(1)<<(width*8) - 1)
}

// Kind is u8..i64 for integer magics and "bytes" otherwise.
func (m *Magic) Kind() string { return m.kind }

// sameType reports whether m and o are read the same way: same integer
// kind, or byte strings of equal length.
func (m *Magic) sameType(o *Magic) bool {
	return m.kind == o.kind && m.width == o.width
}

func (m *Magic) String() string {
	if m.kind == "bytes" {
		return strconv.Quote(string(m.bytes))
	}
	return fmt.Sprintf("%s%s", formatMagicValue(m.value(m.bits)), m.kind)
}

// value converts raw bits into the typed Go value for this kind.
func (m *Magic) value(bits uint64) any {
	switch m.kind {
	case "u8":
		return uint8(bits)
	case "u16":
		return uint16(bits)
	case "u32":
		return uint32(bits)
	case "u64":
		return bits
	case "i8":
		return int8(bits)
	case "i16":
		return int16(bits)
	case "i32":
		return int32(bits)
	case "i64":
		return int64(bits)
	}
	return nil
}

// magicRead is a value read in the shape of some magic.
type magicRead struct {
	bits  uint64
	bytes []byte
}

func (m *Magic) read(src *Source, e Endian) (magicRead, error) {
	if m.kind == "bytes" {
		b, err := src.ReadBytes(uint64(m.width))
		return magicRead{bytes: b}, err
	}
	v, err := src.ReadUint(m.width, e)
	return magicRead{bits: v}, err
}

func (m *Magic) matches(r magicRead) bool {
	if m.kind == "bytes" {
		return bytes.Equal(m.bytes, r.bytes)
	}
	return m.bits == r.bits
}

func (m *Magic) found(r magicRead) any {
	if m.kind == "bytes" {
		return r.bytes
	}
	return m.value(r.bits)
}

// check reads the magic and fails with KindBadMagic at its start position
// when the bytes differ.
func (m *Magic) check(src *Source, e Endian) error {
	pos, err := src.Pos()
	if err != nil {
		return err
	}
	r, err := m.read(src, e)
	if err != nil {
		return err
	}
	if !m.matches(r) {
		return &Error{Kind: KindBadMagic, Pos: pos, Found: m.found(r)}
	}
	return nil
}

// UnmarshalYAML accepts a YAML integer (a u8), a suffixed literal string,
// any other string as raw bytes, or a sequence of byte values.
func (m *Magic) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!int" {
			v, err := strconv.ParseInt(strings.ReplaceAll(node.Value, "_", ""), 0, 64)
			if err != nil {
				return fmt.Errorf("line %d: invalid magic %q: %w", node.Line, node.Value, err)
			}
			parsed, err := MagicInt("u8", v)
			if err != nil {
				return fmt.Errorf("line %d: %w", node.Line, err)
			}
			*m = *parsed
			return nil
		}
		parsed, err := ParseMagic(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*m = *parsed
		return nil
	case yaml.SequenceNode:
		b := make([]byte, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := strconv.ParseUint(item.Value, 0, 8)
			if err != nil {
				return fmt.Errorf("line %d: magic byte %q: %w", item.Line, item.Value, err)
			}
			b = append(b, byte(v))
		}
		if len(b) == 0 {
			return fmt.Errorf("line %d: empty magic", node.Line)
		}
		*m = *MagicBytes(b)
		return nil
	}
	return fmt.Errorf("line %d: magic must be a scalar or a sequence of bytes", node.Line)
}
