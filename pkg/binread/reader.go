package binread

import (
	"context"
	"fmt"
	"log/slog"
)

// Reader reads values described by a compiled schema. A Reader is
// immutable after construction and safe for concurrent use with separate
// Sources.
type Reader struct {
	prog     *program
	logger   *slog.Logger
	tracer   Tracer
	registry *Registry
}

type readerOptions struct {
	logger   *slog.Logger
	tracer   Tracer
	registry *Registry
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(o *readerOptions) {
		o.logger = logger
	}
}

// WithTracer sets the tracer that receives structural events.
func WithTracer(tracer Tracer) ReaderOption {
	return func(o *readerOptions) {
		o.tracer = tracer
	}
}

// WithRegistry sets the registry used to resolve parse-with and try-map
// names. The default registry is used otherwise.
func WithRegistry(registry *Registry) ReaderOption {
	return func(o *readerOptions) {
		o.registry = registry
	}
}

// NewReader compiles schema. Every schema error (unknown types, conflicting
// directives, bad expressions) is reported here rather than during reads.
func NewReader(schema *Schema, opts ...ReaderOption) (*Reader, error) {
	o := readerOptions{
		logger: slog.Default(),
		tracer: NopTracer{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}

	prog, err := compile(schema, o.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	o.logger.Debug("Compiled schema", "schema_id", schema.Meta.ID, "types", len(prog.types), "expr_engine", prog.engine.Name())

	return &Reader{
		prog:     prog,
		logger:   o.logger,
		tracer:   o.tracer,
		registry: o.registry,
	}, nil
}

// WithTracer returns a copy of the reader that reports to tracer.
func (r *Reader) WithTracer(tracer Tracer) *Reader {
	c := *r
	if tracer == nil {
		tracer = NopTracer{}
	}
	c.tracer = tracer
	return &c
}

// RootType is meta.root, or meta.id when no root is given.
func (r *Reader) RootType() string {
	return r.prog.root
}

// RootOptions returns the options a top-level read starts from: the
// schema's meta.endian and nothing else.
func (r *Reader) RootOptions() Options {
	return DefaultOptions().WithEndian(r.prog.endian)
}

// HasType reports whether name is a builtin or a schema type.
func (r *Reader) HasType(name string) bool {
	if _, ok := builtinTypes[name]; ok {
		return true
	}
	_, ok := r.prog.types[name]
	return ok
}

// Read reads the root type from src.
func (r *Reader) Read(ctx context.Context, src *Source) (any, error) {
	if r.prog.root == "" {
		return nil, fmt.Errorf("schema has no root type")
	}
	return r.ReadValue(ctx, src, r.prog.root, r.RootOptions())
}

// ReadBytes reads the root type from data.
func (r *Reader) ReadBytes(ctx context.Context, data []byte) (any, error) {
	return r.Read(ctx, NewBytesSource(data))
}

// ReadValue reads one value of typeName at the cursor of src. Read
// failures are *Error values; the cursor position after a failure is
// unspecified unless the failing construct restores it.
func (r *Reader) ReadValue(ctx context.Context, src *Source, typeName string, opts Options, args ...any) (any, error) {
	ref, err := ParseTypeRef(typeName)
	if err != nil {
		return nil, err
	}
	if err := (&compiler{types: r.prog.types}).checkRef(ref); err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Reading value", "type_name", typeName, "endian", opts.Endian().String())

	value, err := r.readRef(ctx, src, ref, opts, args)
	if err != nil {
		r.logger.ErrorContext(ctx, "Read failed", "type_name", typeName, "error", err)
		return nil, err
	}
	return value, nil
}

func (r *Reader) readRef(ctx context.Context, src *Source, ref TypeRef, opts Options, args []any) (any, error) {
	if _, ok := builtinTypes[ref.Name]; ok {
		return r.readBuiltin(ctx, src, ref, opts, args)
	}

	t, ok := r.prog.types[ref.Name]
	if !ok {
		pos, _ := src.Pos()
		return nil, CustomError(pos, fmt.Errorf("unknown type %q", ref.Name))
	}
	if t.endian != nil {
		opts = opts.WithEndian(*t.endian)
	}
	if t.isEnum {
		return r.readEnum(ctx, src, t, opts, args)
	}
	if t.mapped != nil {
		return r.readMapped(ctx, src, t, opts, args)
	}
	fields, err := r.readBody(ctx, src, t.body, opts, args)
	if err != nil {
		return nil, err
	}
	return fields, nil
}
