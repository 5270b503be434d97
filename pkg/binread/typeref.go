package binread

import (
	"fmt"
	"strings"
)

// TypeRef names a type with optional parameters, written `name<p1, p2>`.
// Parameters are themselves type references, so `vec<ptr32<record>>` nests.
type TypeRef struct {
	Name   string
	Params []TypeRef
}

func (t TypeRef) String() string {
	if len(t.Params) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return t.Name + "<" + strings.Join(parts, ",") + ">"
}

// ParseTypeRef parses a type reference such as `u16`, `str<UTF-8>` or
// `punctuated<u16,u8>`.
func ParseTypeRef(s string) (TypeRef, error) {
	p := &typeRefParser{src: s}
	ref, err := p.parse()
	if err != nil {
		return TypeRef{}, fmt.Errorf("invalid type reference %q: %w", s, err)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return TypeRef{}, fmt.Errorf("invalid type reference %q: unexpected %q at offset %d", s, p.src[p.pos:], p.pos)
	}
	return ref, nil
}

type typeRefParser struct {
	src string
	pos int
}

func (p *typeRefParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeRefParser) parse() (TypeRef, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isTypeNameChar(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		if p.pos >= len(p.src) {
			return TypeRef{}, fmt.Errorf("missing type name")
		}
		return TypeRef{}, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos], p.pos)
	}
	ref := TypeRef{Name: p.src[start:p.pos]}

	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '<' {
		return ref, nil
	}
	p.pos++

	for {
		param, err := p.parse()
		if err != nil {
			return TypeRef{}, err
		}
		ref.Params = append(ref.Params, param)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return TypeRef{}, fmt.Errorf("unterminated parameter list for %s", ref.Name)
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '>':
			p.pos++
			return ref, nil
		default:
			return TypeRef{}, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos], p.pos)
		}
	}
}

func isTypeNameChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '_' || c == '-' || c == '.' || c == ':'
}
