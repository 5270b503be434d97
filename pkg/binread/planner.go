package binread

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// frame is the per-body read state: the options fields inherit and the
// names visible to expressions.
type frame struct {
	opts Options
	vars map[string]any
}

func newFrame(opts Options) *frame {
	return &frame{opts: opts, vars: make(map[string]any)}
}

func (fr *frame) bind(name string, value any) {
	fr.vars[name] = exprValue(value)
}

// pendingLink is a value whose pointers are resolved after the whole body
// has been read.
type pendingLink struct {
	field *fieldPlan
	value any
	opts  Options
	args  []any
}

type fieldResult struct {
	value   any
	pending *pendingLink
}

// readField runs one field's directives in order: if, options, args,
// seek-before, pad-before, align-before, the action, map or try-map,
// binding, assertions, linking, pad-size-to, pad-after and align-after.
// restore-position returns the cursor to where the field started whether
// or not the field succeeded. With try, a failed read yields nil and skips
// map and try-map.
func (r *Reader) readField(ctx context.Context, src *Source, f *fieldPlan, fr *frame) (res fieldResult, err error) {
	if f.restorePosition {
		saved, err := src.Pos()
		if err != nil {
			return res, err
		}
		defer func() {
			if serr := src.Seek(saved); serr != nil && err == nil {
				err = serr
			}
		}()
	}

	if f.cond != nil {
		ok, err := evalBool(src, f.cond, fr.vars)
		if err != nil {
			return res, err
		}
		if !ok {
			fr.bind(f.name, nil)
			return res, nil
		}
	}

	opts, err := r.fieldOptions(src, f, fr)
	if err != nil {
		return res, err
	}
	args, err := evalArgs(src, f.args, fr.vars)
	if err != nil {
		return res, err
	}

	if f.seekBefore != nil {
		pos, err := evalInt(src, f.seekBefore, fr.vars)
		if err != nil {
			return res, err
		}
		if err := src.Seek(pos); err != nil {
			return res, err
		}
	}
	if f.padBefore != nil {
		if err := r.pad(src, f.padBefore, fr); err != nil {
			return res, err
		}
	}
	if f.alignBefore != nil {
		if err := r.align(src, f.alignBefore, fr); err != nil {
			return res, err
		}
	}

	var padStart int64
	if f.padSizeTo != nil {
		if padStart, err = src.Pos(); err != nil {
			return res, err
		}
	}

	var raw any
	if f.try {
		raw, err = r.tryAction(ctx, src, f, fr, opts, args)
	} else {
		raw, err = r.runAction(ctx, src, f, fr, opts, args)
	}
	if err != nil {
		return res, err
	}
	value := raw
	if !f.try || raw != nil {
		if value, err = convert(src, f.mapExpr, f.tryMap, f.tryMapSpec, fr.vars, raw); err != nil {
			return res, err
		}
	}

	if _, ignored := f.action.(ignoreAction); !ignored {
		fr.bind(f.name, value)
	}

	if err := checkAssertions(src, f.asserts, fr.vars); err != nil {
		return res, err
	}

	if f.linkable() {
		if f.deferred() {
			res.pending = &pendingLink{field: f, value: value, opts: opts, args: args}
		} else {
			if err := r.link(ctx, src, value, opts, args); err != nil {
				return res, err
			}
			fr.bind(f.name, value)
		}
	}

	if f.padSizeTo != nil {
		target, err := evalUint(src, f.padSizeTo, fr.vars)
		if err != nil {
			return res, err
		}
		pos, err := src.Pos()
		if err != nil {
			return res, err
		}
		if err := src.Skip(sizePadding(pos-padStart, target)); err != nil {
			return res, err
		}
	}
	if f.padAfter != nil {
		if err := r.pad(src, f.padAfter, fr); err != nil {
			return res, err
		}
	}
	if f.alignAfter != nil {
		if err := r.align(src, f.alignAfter, fr); err != nil {
			return res, err
		}
	}

	res.value = value
	return res, nil
}

// fieldOptions derives the child options: endian override, count, offset
// and the field's trace name. The parent's options are never modified.
func (r *Reader) fieldOptions(src *Source, f *fieldPlan, fr *frame) (Options, error) {
	opts := fr.opts.WithoutCount().WithTraceName(f.name)

	if f.endian.set {
		if f.endian.cond == nil {
			opts = opts.WithEndian(f.endian.fixed)
		} else {
			b, err := evalBool(src, f.endian.cond, fr.vars)
			if err != nil {
				return opts, err
			}
			if b {
				opts = opts.WithEndian(f.endian.whenTrue)
			} else {
				opts = opts.WithEndian(f.endian.whenFalse)
			}
		}
	}
	if f.count != nil {
		n, err := evalUint(src, f.count, fr.vars)
		if err != nil {
			return opts, err
		}
		opts = opts.WithCount(n)
	}
	if f.offset != nil {
		off, err := evalInt(src, f.offset, fr.vars)
		if err != nil {
			return opts, err
		}
		opts = opts.WithOffset(off)
	}
	return opts, nil
}

func evalArgs(src *Source, exprs []Expression, vars map[string]any) ([]any, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	args := make([]any, len(exprs))
	for i, x := range exprs {
		v, err := eval(src, x, vars)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (r *Reader) runAction(ctx context.Context, src *Source, f *fieldPlan, fr *frame, opts Options, args []any) (any, error) {
	switch a := f.action.(type) {
	case ignoreAction, defaultAction:
		return r.zeroValue(f.typ, f.hasType, 0), nil
	case calcAction:
		return eval(src, a.expr, fr.vars)
	case customAction:
		pos, err := src.Pos()
		if err != nil {
			return nil, err
		}
		v, err := a.fn(ctx, ParseCall{
			Reader:  r,
			Source:  src,
			Options: opts,
			Args:    args,
			Type:    f.typ,
		})
		if err != nil {
			return nil, customError(pos, err)
		}
		return v, nil
	case normalAction:
		return r.readRef(ctx, src, f.typ, opts, args)
	}
	return nil, fmt.Errorf("field %s: unhandled action %T", f.name, f.action)
}

// tryAction runs the field's read and turns a read failure into a nil
// value, with the cursor back where the read started.
func (r *Reader) tryAction(ctx context.Context, src *Source, f *fieldPlan, fr *frame, opts Options, args []any) (any, error) {
	start, err := src.Pos()
	if err != nil {
		return nil, err
	}
	v, err := r.runAction(ctx, src, f, fr, opts, args)
	var berr *Error
	if err == nil || !errors.As(err, &berr) {
		return v, err
	}

	r.logger.DebugContext(ctx, "Try read failed", "field", f.name, "pos", start, "error", err)
	if err := src.Seek(start); err != nil {
		return nil, err
	}
	return nil, nil
}

// convert runs map (with the raw value bound as `self`) or try-map.
// try-map failures are KindCustom errors at the position after the read.
func convert(src *Source, mapExpr Expression, tryMap func(any) (any, error), spec string, vars map[string]any, raw any) (any, error) {
	switch {
	case mapExpr != nil:
		scope := maps.Clone(vars)
		scope["self"] = exprValue(raw)
		return eval(src, mapExpr, scope)
	case tryMap != nil:
		v, err := tryMap(raw)
		if err != nil {
			pos, _ := src.Pos()
			return nil, CustomError(pos, fmt.Errorf("try-map %s: %w", spec, err))
		}
		return v, nil
	}
	return raw, nil
}

func checkAssertions(src *Source, asserts []assertion, vars map[string]any) error {
	for _, a := range asserts {
		ok, err := evalBool(src, a.expr, vars)
		if err != nil {
			return err
		}
		if !ok {
			pos, _ := src.Pos()
			return &Error{Kind: KindAssertion, Pos: pos, Expr: a.expr.Source(), Message: a.message}
		}
	}
	return nil
}

func (r *Reader) pad(src *Source, x Expression, fr *frame) error {
	n, err := evalUint(src, x, fr.vars)
	if err != nil {
		return err
	}
	return src.Skip(int64(n))
}

func (r *Reader) align(src *Source, x Expression, fr *frame) error {
	n, err := evalUint(src, x, fr.vars)
	if err != nil {
		return err
	}
	pos, err := src.Pos()
	if err != nil {
		return err
	}
	return src.Skip(alignPadding(pos, n))
}

// alignPadding is the number of bytes that moves pos to the next multiple
// of align. Alignments of 0 and 1 never pad.
func alignPadding(pos int64, align uint64) int64 {
	if align <= 1 {
		return 0
	}
	a := int64(align)
	return (a - pos%a) % a
}

// sizePadding is the number of bytes left to reach target after consumed
// bytes. It is never negative.
func sizePadding(consumed int64, target uint64) int64 {
	if consumed < 0 || uint64(consumed) >= target {
		return 0
	}
	return int64(target) - consumed
}
