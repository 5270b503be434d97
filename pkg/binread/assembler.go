package binread

import (
	"context"
	"fmt"

	"github.com/Velocidex/ordereddict"
)

// readBody reads a struct or variant body and returns its fields in
// declaration order, temp fields excluded. The tracer sees StartType on
// entry and EndType on every exit; failures add an "Error: ..." comment.
func (r *Reader) readBody(ctx context.Context, src *Source, body *bodyPlan, opts Options, args []any) (*ordereddict.Dict, error) {
	r.tracer.StartType(body.name)

	fields, err := r.assemble(ctx, src, body, opts, args)
	if err != nil {
		r.tracer.Comment(fmt.Sprintf("Error: %v", err))
		r.tracer.EndType(opts.TraceName())
		return nil, err
	}

	r.tracer.EndType(opts.TraceName())
	return fields, nil
}

func (r *Reader) assemble(ctx context.Context, src *Source, body *bodyPlan, opts Options, args []any) (*ordereddict.Dict, error) {
	if body.endian != nil {
		opts = opts.WithEndian(*body.endian)
	}
	fr, err := enter(src, body, opts, args)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(body.fields))
	var pending []*pendingLink
	for i, f := range body.fields {
		res, err := r.readField(ctx, src, f, fr)
		if err != nil {
			return nil, err
		}
		values[i] = res.value
		if res.pending != nil {
			pending = append(pending, res.pending)
		}
	}

	if len(pending) > 0 {
		if err := r.linkPending(ctx, src, pending, fr); err != nil {
			return nil, err
		}
	}

	if err := checkAssertions(src, body.asserts, fr.vars); err != nil {
		return nil, err
	}

	out := ordereddict.NewDict()
	for i, f := range body.fields {
		if f.temp {
			continue
		}
		out.Set(f.name, values[i])
	}
	return out, nil
}

// enter binds a body's params and checks its magic and pre-assertions.
func enter(src *Source, body *bodyPlan, opts Options, args []any) (*frame, error) {
	fr := newFrame(opts)
	if len(args) != len(body.params) {
		pos, _ := src.Pos()
		return nil, CustomError(pos, fmt.Errorf("%s expects %d argument(s), got %d", body.name, len(body.params), len(args)))
	}
	for i, name := range body.params {
		fr.bind(name, args[i])
	}

	if body.magic != nil {
		if err := body.magic.check(src, opts.Endian()); err != nil {
			return nil, err
		}
	}
	if err := checkAssertions(src, body.preAsserts, fr.vars); err != nil {
		return nil, err
	}
	return fr, nil
}

// readMapped reads a read-as type: magic and pre-assertions, the read-as
// type with the same arguments, map or try-map, then the type's
// assertions with the converted value bound as `self`.
func (r *Reader) readMapped(ctx context.Context, src *Source, t *typePlan, opts Options, args []any) (any, error) {
	m := t.mapped
	r.tracer.StartType(m.body.name)

	value, err := r.mapRead(ctx, src, m, opts, args)
	if err != nil {
		r.tracer.Comment(fmt.Sprintf("Error: %v", err))
	}
	r.tracer.EndType(opts.TraceName())
	return value, err
}

func (r *Reader) mapRead(ctx context.Context, src *Source, m *mappedPlan, opts Options, args []any) (any, error) {
	fr, err := enter(src, m.body, opts, args)
	if err != nil {
		return nil, err
	}

	var fromArgs []any
	if _, builtin := builtinTypes[m.from.Name]; !builtin {
		fromArgs = args
	}
	raw, err := r.readRef(ctx, src, m.from, opts, fromArgs)
	if err != nil {
		return nil, err
	}
	value, err := convert(src, m.mapExpr, m.tryMap, m.tryMapSpec, fr.vars, raw)
	if err != nil {
		return nil, err
	}

	fr.bind("self", value)
	if err := checkAssertions(src, m.body.asserts, fr.vars); err != nil {
		return nil, err
	}
	return value, nil
}

// linkPending resolves deferred fields in declaration order, after
// applying offset-after, and returns the cursor to where the body ended.
func (r *Reader) linkPending(ctx context.Context, src *Source, pending []*pendingLink, fr *frame) error {
	for _, p := range pending {
		if p.field.offsetAfter == nil {
			continue
		}
		off, err := evalInt(src, p.field.offsetAfter, fr.vars)
		if err != nil {
			return err
		}
		p.opts = p.opts.WithOffset(off)
	}

	saved, err := src.Pos()
	if err != nil {
		return err
	}
	for _, p := range pending {
		if err := r.link(ctx, src, p.value, p.opts, p.args); err != nil {
			return err
		}
		fr.bind(p.field.name, p.value)
	}
	return src.Seek(saved)
}
