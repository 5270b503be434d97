package binread

import (
	"context"
)

func (r *Reader) readEnum(ctx context.Context, src *Source, t *typePlan, opts Options, args []any) (any, error) {
	switch t.strategy {
	case strategyDiscriminant:
		return r.dispatchDiscriminant(ctx, src, t, opts)
	case strategyMagic:
		return r.dispatchMagic(src, t, opts)
	}
	return r.resolveBacktracking(ctx, src, t, opts, args)
}

// dispatchDiscriminant reads the repr integer and picks the unit variant
// with that value.
func (r *Reader) dispatchDiscriminant(ctx context.Context, src *Source, t *typePlan, opts Options) (any, error) {
	pos, err := src.Pos()
	if err != nil {
		return nil, err
	}
	raw, err := r.readBuiltin(ctx, src, t.repr, opts, nil)
	if err != nil {
		return nil, err
	}
	if d, ok := toInt64(raw); ok {
		for _, v := range t.variants {
			if v.discriminant == d {
				return &EnumValue{Variant: v.name}, nil
			}
		}
	}
	return nil, &Error{Kind: KindNoVariantMatch, Pos: pos}
}

// dispatchMagic reads one value shaped like the variants' shared magic and
// picks the variant it equals.
func (r *Reader) dispatchMagic(src *Source, t *typePlan, opts Options) (any, error) {
	pos, err := src.Pos()
	if err != nil {
		return nil, err
	}
	proto := t.variants[0].magic
	found, err := proto.read(src, opts.Endian())
	if err != nil {
		return nil, err
	}
	for _, v := range t.variants {
		if v.magic.matches(found) {
			return &EnumValue{Variant: v.name}, nil
		}
	}
	return nil, &Error{Kind: KindNoVariantMatch, Pos: pos, Found: proto.found(found)}
}

// resolveBacktracking tries each variant in declaration order from the
// same start position. A failed attempt rewinds the cursor before the next
// one, so the first success sees exactly the bytes it would have seen
// alone.
func (r *Reader) resolveBacktracking(ctx context.Context, src *Source, t *typePlan, opts Options, args []any) (any, error) {
	start, err := src.Pos()
	if err != nil {
		return nil, err
	}

	var basket []VariantError
	for _, v := range t.variants {
		fields, err := r.readBody(ctx, src, v.body, opts, args)
		if err == nil {
			if v.unit {
				fields = nil
			}
			return &EnumValue{Variant: v.name, Fields: fields}, nil
		}

		r.logger.DebugContext(ctx, "Variant did not match",
			"type_name", t.name,
			"variant", v.name,
			"pos", start,
			"error", err)

		if serr := src.Seek(start); serr != nil {
			return nil, serr
		}

		switch t.errorMode {
		case ErrorModeTerminal:
			return nil, &Error{Kind: KindNoVariantMatch, Pos: start, Err: err}
		case ErrorModeAll:
			basket = append(basket, VariantError{Variant: v.name, Err: err})
		}
	}

	if t.errorMode == ErrorModeAll {
		return nil, &Error{Kind: KindEnumErrors, Pos: start, Variants: basket}
	}
	return nil, &Error{Kind: KindNoVariantMatch, Pos: start}
}
