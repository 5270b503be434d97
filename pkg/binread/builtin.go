package binread

import (
	"context"
	"fmt"

	"github.com/Velocidex/ordereddict"
)

type builtinSpec struct {
	minParams int
	maxParams int
}

func (s builtinSpec) arity() string {
	switch {
	case s.minParams == s.maxParams && s.minParams == 0:
		return "no type parameters"
	case s.minParams == s.maxParams:
		return fmt.Sprintf("exactly %d type parameter(s)", s.minParams)
	}
	return fmt.Sprintf("%d to %d type parameters", s.minParams, s.maxParams)
}

var builtinTypes = map[string]builtinSpec{
	"u8": {}, "u16": {}, "u32": {}, "u64": {},
	"i8": {}, "i16": {}, "i32": {}, "i64": {},
	"f32": {}, "f64": {},
	"unit":       {},
	"bytes":      {},
	"str":        {0, 1},
	"strz":       {0, 1},
	"wstrz":      {},
	"vec":        {1, 1},
	"punctuated": {2, 2},
	"ptr8":       {1, 1},
	"ptr16":      {1, 1},
	"ptr32":      {1, 1},
	"ptr64":      {1, 1},
}

var pointerWidths = map[string]int{"ptr8": 1, "ptr16": 2, "ptr32": 4, "ptr64": 8}

// capHint bounds a preallocation driven by a count read from the data.
func capHint(n uint64) int {
	const limit = 4096
	if n > limit {
		return limit
	}
	return int(n)
}

func (r *Reader) readBuiltin(ctx context.Context, src *Source, ref TypeRef, opts Options, args []any) (any, error) {
	e := opts.Endian()

	if k, ok := intKinds[ref.Name]; ok {
		if k.signed {
			v, err := src.ReadInt(k.width, e)
			if err != nil {
				return nil, err
			}
			switch k.width {
			case 1:
				return int8(v), nil
			case 2:
				return int16(v), nil
			case 4:
				return int32(v), nil
			}
			return v, nil
		}
		v, err := src.ReadUint(k.width, e)
		if err != nil {
			return nil, err
		}
		switch k.width {
		case 1:
			return uint8(v), nil
		case 2:
			return uint16(v), nil
		case 4:
			return uint32(v), nil
		}
		return v, nil
	}

	if width, ok := pointerWidths[ref.Name]; ok {
		v, err := src.ReadUint(width, e)
		if err != nil {
			return nil, err
		}
		return &FilePtr{Ptr: v, target: ref.Params[0]}, nil
	}

	switch ref.Name {
	case "f32":
		return src.ReadF32(e)
	case "f64":
		return src.ReadF64(e)
	case "unit":
		return nil, nil
	case "bytes":
		n, err := requireCount(src, opts)
		if err != nil {
			return nil, err
		}
		return src.ReadBytes(n)
	case "str":
		n, err := requireCount(src, opts)
		if err != nil {
			return nil, err
		}
		pos, _ := src.Pos()
		raw, err := src.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		return decodeAt(pos, raw, encodingParam(ref))
	case "strz":
		pos, _ := src.Pos()
		raw, err := src.ReadBytesTerm(0)
		if err != nil {
			return nil, err
		}
		return decodeAt(pos, raw, encodingParam(ref))
	case "wstrz":
		pos, _ := src.Pos()
		raw, err := src.ReadUTF16Term()
		if err != nil {
			return nil, err
		}
		s, err := utf16Encoding(e).NewDecoder().Bytes(raw)
		if err != nil {
			return nil, CustomError(pos, err)
		}
		return string(s), nil
	case "vec":
		n, err := requireCount(src, opts)
		if err != nil {
			return nil, err
		}
		items := make([]any, 0, capHint(n))
		for i := uint64(0); i < n; i++ {
			item, err := r.readRef(ctx, src, ref.Params[0], opts, args)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case "punctuated":
		pos, _ := src.Pos()
		return nil, CustomError(pos, fmt.Errorf("%s must be read with parse-with: separated or separated_trailing", ref))
	}

	pos, _ := src.Pos()
	return nil, CustomError(pos, fmt.Errorf("unknown builtin type %s", ref.Name))
}

func requireCount(src *Source, opts Options) (uint64, error) {
	n, ok := opts.Count()
	if !ok {
		pos, err := src.Pos()
		if err != nil {
			return 0, err
		}
		return 0, missingOption(pos, "count")
	}
	return n, nil
}

func encodingParam(ref TypeRef) string {
	if len(ref.Params) == 0 {
		return "UTF-8"
	}
	return ref.Params[0].Name
}

func decodeAt(pos int64, raw []byte, enc string) (any, error) {
	s, err := decodeString(raw, enc)
	if err != nil {
		return nil, CustomError(pos, err)
	}
	return s, nil
}

// zeroValue is the value produced by the default and ignore actions.
func (r *Reader) zeroValue(ref TypeRef, hasType bool, depth int) any {
	if !hasType {
		return nil
	}
	switch ref.Name {
	case "u8":
		return uint8(0)
	case "u16":
		return uint16(0)
	case "u32":
		return uint32(0)
	case "u64":
		return uint64(0)
	case "i8":
		return int8(0)
	case "i16":
		return int16(0)
	case "i32":
		return int32(0)
	case "i64":
		return int64(0)
	case "f32":
		return float32(0)
	case "f64":
		return float64(0)
	case "bytes":
		return []byte{}
	case "str", "strz", "wstrz":
		return ""
	case "vec":
		return []any{}
	case "punctuated":
		return &Punctuated{Items: []any{}, Separators: []any{}}
	case "unit":
		return nil
	}
	if _, ok := pointerWidths[ref.Name]; ok {
		return &FilePtr{target: ref.Params[0]}
	}

	t, ok := r.prog.types[ref.Name]
	if !ok || t.isEnum || t.mapped != nil || depth > 8 {
		return nil
	}
	out := ordereddict.NewDict()
	for _, f := range t.body.fields {
		if f.temp {
			continue
		}
		out.Set(f.name, r.zeroValue(f.typ, f.hasType, depth+1))
	}
	return out
}

// link resolves the pointers inside a value read by a deferred or deref-now
// field. Pointers are resolved depth first; the cursor is restored after
// each pointer.
func (r *Reader) link(ctx context.Context, src *Source, value any, opts Options, args []any) error {
	switch v := value.(type) {
	case *FilePtr:
		return r.linkPointer(ctx, src, v, opts, args)
	case []any:
		for _, item := range v {
			if err := r.link(ctx, src, item, opts, args); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) linkPointer(ctx context.Context, src *Source, p *FilePtr, opts Options, args []any) (err error) {
	if p.Value != nil {
		return nil
	}
	before, err := src.Pos()
	if err != nil {
		return err
	}
	defer func() {
		if serr := src.Seek(before); serr != nil && err == nil {
			err = serr
		}
	}()

	target := opts.Offset() + int64(p.Ptr)
	if err := src.Seek(target); err != nil {
		return err
	}
	value, err := r.readRef(ctx, src, p.target, opts, args)
	if err != nil {
		return err
	}
	if err := r.link(ctx, src, value, opts, args); err != nil {
		return err
	}
	p.Value = value
	r.logger.DebugContext(ctx, "Linked pointer", "target_type", p.target.String(), "ptr", p.Ptr, "offset", target)
	return nil
}
