package decode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/twinfer/binread-plugin/pkg/binread"
)

// Decoder loads schema files, compiles them once and decodes binary data
// with the resulting readers.
type Decoder struct {
	cache      map[cacheKey]*cacheEntry
	cacheMutex sync.RWMutex
	logger     *slog.Logger
	options    options
	now        func() time.Time
}

type cacheKey struct {
	path     string
	registry *binread.Registry
}

type cacheEntry struct {
	reader   *binread.Reader
	loadedAt time.Time
}

// options holds configuration for the decoder
type options struct {
	rootType      string
	logger        *slog.Logger
	enableCaching bool
	cacheTimeout  time.Duration
	tracer        binread.Tracer
	registry      *binread.Registry
	debugMode     bool
	cacheHook     func(path string, hit bool)
}

// Option configures a Decoder or a single decode call.
type Option func(*options)

// WithRootType reads the named type instead of the schema's root
func WithRootType(rootType string) Option {
	return func(o *options) {
		o.rootType = rootType
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCaching keeps compiled schemas for timeout. A timeout of zero or less
// keeps them until ClearCache.
func WithCaching(timeout time.Duration) Option {
	return func(o *options) {
		o.enableCaching = true
		o.cacheTimeout = timeout
	}
}

// WithoutCaching loads and compiles the schema on every call
func WithoutCaching() Option {
	return func(o *options) {
		o.enableCaching = false
	}
}

// WithTracer sets the tracer that receives structural events
func WithTracer(tracer binread.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithRegistry sets the parse-with and try-map function registry
func WithRegistry(registry *binread.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithDebugMode tags log records and traces every read at debug level
func WithDebugMode(enabled bool) Option {
	return func(o *options) {
		o.debugMode = enabled
	}
}

// WithCacheHook is called on every schema lookup with whether the cache
// served it.
func WithCacheHook(hook func(path string, hit bool)) Option {
	return func(o *options) {
		o.cacheHook = hook
	}
}

func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		enableCaching: true,
		cacheTimeout:  5 * time.Minute,
	}
}

var globalDecoder *Decoder
var globalDecoderOnce sync.Once

func getGlobalDecoder() *Decoder {
	globalDecoderOnce.Do(func() {
		globalDecoder = NewDecoder()
	})
	return globalDecoder
}

// NewDecoder creates a decoder with the given options
func NewDecoder(opts ...Option) *Decoder {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.registry == nil {
		options.registry = binread.NewRegistry()
	}
	if options.debugMode {
		options.logger = options.logger.With("debug", true)
	}

	return &Decoder{
		cache:   make(map[cacheKey]*cacheEntry),
		logger:  options.logger,
		options: options,
		now:     time.Now,
	}
}

// Decode decodes data with the schema at schemaPath using the global decoder
func Decode(data []byte, schemaPath string, opts ...Option) (any, error) {
	return getGlobalDecoder().Decode(context.Background(), data, schemaPath, opts...)
}

// DecodeWithContext is Decode with a caller context
func DecodeWithContext(ctx context.Context, data []byte, schemaPath string, opts ...Option) (any, error) {
	return getGlobalDecoder().Decode(ctx, data, schemaPath, opts...)
}

// DecodeToJSON decodes data and renders the result as indented JSON
func DecodeToJSON(data []byte, schemaPath string, opts ...Option) ([]byte, error) {
	return getGlobalDecoder().DecodeToJSON(context.Background(), data, schemaPath, opts...)
}

// DecodeToJSONWithContext is DecodeToJSON with a caller context
func DecodeToJSONWithContext(ctx context.Context, data []byte, schemaPath string, opts ...Option) ([]byte, error) {
	return getGlobalDecoder().DecodeToJSON(ctx, data, schemaPath, opts...)
}

// ValidateSchema loads and compiles a schema file without decoding data
func ValidateSchema(schemaPath string) error {
	return getGlobalDecoder().ValidateSchema(schemaPath)
}

// Decode reads the root type (or WithRootType) from data and returns it as
// plain maps, slices and scalars.
func (d *Decoder) Decode(ctx context.Context, data []byte, schemaPath string, opts ...Option) (any, error) {
	value, err := d.decode(ctx, data, schemaPath, opts...)
	if err != nil {
		return nil, err
	}
	return binread.ToNative(value), nil
}

// DecodeRaw is Decode without the conversion to native values: structs stay
// ordered and enums, pointers and punctuated lists keep their types.
func (d *Decoder) DecodeRaw(ctx context.Context, data []byte, schemaPath string, opts ...Option) (any, error) {
	return d.decode(ctx, data, schemaPath, opts...)
}

// DecodeToJSON decodes data and marshals it with field order preserved.
func (d *Decoder) DecodeToJSON(ctx context.Context, data []byte, schemaPath string, opts ...Option) ([]byte, error) {
	value, err := d.decode(ctx, data, schemaPath, opts...)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling to JSON: %w", err)
	}
	return jsonData, nil
}

func (d *Decoder) decode(ctx context.Context, data []byte, schemaPath string, opts ...Option) (any, error) {
	options := d.options
	for _, opt := range opts {
		opt(&options)
	}

	reader, err := d.reader(schemaPath, options)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	tracer := options.tracer
	if tracer == nil && options.debugMode {
		tracer = binread.NewSlogTracer(d.logger)
	}
	if tracer != nil {
		reader = reader.WithTracer(tracer)
	}

	src := binread.NewBytesSource(data)
	rootType := options.rootType
	if rootType == "" {
		rootType = reader.RootType()
	}
	if rootType == "" {
		return nil, fmt.Errorf("schema %s has no root type; use WithRootType", schemaPath)
	}

	d.logger.DebugContext(ctx, "Decoding data", "schema_path", schemaPath, "root_type", rootType, "size", len(data))

	value, err := reader.ReadValue(ctx, src, rootType, reader.RootOptions())
	if err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}
	return value, nil
}

// Reader returns the compiled reader for a schema file, from the cache when
// possible.
func (d *Decoder) Reader(schemaPath string) (*binread.Reader, error) {
	return d.reader(schemaPath, d.options)
}

func (d *Decoder) reader(schemaPath string, options options) (*binread.Reader, error) {
	key := cacheKey{path: schemaPath, registry: options.registry}

	if options.enableCaching {
		d.cacheMutex.RLock()
		entry, exists := d.cache[key]
		d.cacheMutex.RUnlock()
		if exists && !d.expired(entry, options.cacheTimeout) {
			d.notify(options, schemaPath, true)
			return entry.reader, nil
		}
	}
	d.notify(options, schemaPath, false)

	schema, err := binread.LoadSchemaFile(schemaPath)
	if err != nil {
		return nil, err
	}
	reader, err := binread.NewReader(schema,
		binread.WithLogger(d.logger),
		binread.WithRegistry(options.registry),
	)
	if err != nil {
		return nil, err
	}

	if options.enableCaching {
		d.cacheMutex.Lock()
		d.cache[key] = &cacheEntry{reader: reader, loadedAt: d.now()}
		d.cacheMutex.Unlock()
	}
	return reader, nil
}

func (d *Decoder) expired(entry *cacheEntry, timeout time.Duration) bool {
	return timeout > 0 && d.now().Sub(entry.loadedAt) > timeout
}

func (d *Decoder) notify(options options, path string, hit bool) {
	if options.cacheHook != nil {
		options.cacheHook(path, hit)
	}
}

// ClearCache drops every compiled schema
func (d *Decoder) ClearCache() {
	d.cacheMutex.Lock()
	defer d.cacheMutex.Unlock()
	d.cache = make(map[cacheKey]*cacheEntry)
}

// ValidateSchema loads and compiles a schema file without decoding data
func (d *Decoder) ValidateSchema(schemaPath string) error {
	_, err := d.reader(schemaPath, d.options)
	return err
}
