package binread

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/pierrec/lz4"
)

// ParseCall is the input of a custom parse function.
type ParseCall struct {
	Reader  *Reader
	Source  *Source
	Options Options
	Args    []any
	// Type is the declared type of the field, e.g. punctuated<u16,u8>.
	Type TypeRef
}

// ReadItem reads one value of type t with the call's reader.
func (c ParseCall) ReadItem(ctx context.Context, t TypeRef, opts Options, args []any) (any, error) {
	return c.Reader.readRef(ctx, c.Source, t, opts, args)
}

// ParseFunc replaces the default read of a field (`parse-with`).
type ParseFunc func(ctx context.Context, call ParseCall) (any, error)

// TryMapFunc transforms a raw value after reading (`try-map`). Params are
// the literal arguments written in the schema, e.g. xor(0x5f).
type TryMapFunc func(value any, params []any) (any, error)

// Registry holds the named parse and try-map functions a schema may refer
// to.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]ParseFunc
	tryMaps map[string]TryMapFunc
}

// NewRegistry creates a registry with the default functions: the
// separated and separated_trailing parsers and the zlib, lz4, xor, rotate,
// utf8 and nonzero try-maps.
func NewRegistry() *Registry {
	registry := &Registry{
		parsers: make(map[string]ParseFunc),
		tryMaps: make(map[string]TryMapFunc),
	}

	registry.RegisterParser("separated", ReadSeparated)
	registry.RegisterParser("separated_trailing", ReadSeparatedTrailing)

	registry.RegisterTryMap("xor", tryMapXOR)
	registry.RegisterTryMap("zlib", tryMapZlib)
	registry.RegisterTryMap("lz4", tryMapLZ4)
	registry.RegisterTryMap("rotate", tryMapRotate)
	registry.RegisterTryMap("utf8", tryMapUTF8)
	registry.RegisterTryMap("nonzero", tryMapNonZero)

	return registry
}

// RegisterParser adds or replaces a parse-with function.
func (r *Registry) RegisterParser(name string, fn ParseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[name] = fn
}

// RegisterTryMap adds or replaces a try-map function.
func (r *Registry) RegisterTryMap(name string, fn TryMapFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tryMaps[name] = fn
}

// Parser looks up a parse-with function.
func (r *Registry) Parser(name string) (ParseFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.parsers[name]
	return fn, ok
}

// TryMap looks up a try-map function.
func (r *Registry) TryMap(name string) (TryMapFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tryMaps[name]
	return fn, ok
}

// bindTryMap resolves a try-map spec such as `xor(0x5f)` or `utf8` into a
// single-argument function.
func (r *Registry) bindTryMap(spec string) (func(any) (any, error), error) {
	name, params, err := parseFuncSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid try-map specification: %w", err)
	}
	fn, ok := r.TryMap(name)
	if !ok {
		return nil, fmt.Errorf("unknown try-map function: %s", name)
	}
	return func(v any) (any, error) { return fn(v, params) }, nil
}

// parseFuncSpec splits `name(p1, p2)` or `name([p1, p2])` into the name and
// literal params. A bare name has no params.
func parseFuncSpec(spec string) (string, []any, error) {
	spec = strings.TrimSpace(spec)
	openParenIndex := strings.Index(spec, "(")
	if openParenIndex == -1 {
		if spec == "" {
			return "", nil, fmt.Errorf("empty function name")
		}
		return spec, nil, nil
	}
	closeParenIndex := strings.LastIndex(spec, ")")
	if closeParenIndex < openParenIndex || closeParenIndex != len(spec)-1 {
		return "", nil, fmt.Errorf("invalid function format: %s", spec)
	}

	funcName := strings.TrimSpace(spec[:openParenIndex])
	paramStr := strings.TrimSpace(spec[openParenIndex+1 : closeParenIndex])
	paramStr = strings.TrimSuffix(strings.TrimPrefix(paramStr, "["), "]")

	var params []any
	if paramStr == "" {
		return funcName, params, nil
	}
	for _, part := range strings.Split(paramStr, ",") {
		params = append(params, parseParam(strings.TrimSpace(part)))
	}
	return funcName, params, nil
}

// parseParam reads an integer (decimal, 0x, 0o or 0b), then a float, and
// falls back to the raw string.
func parseParam(paramStr string) any {
	if val, err := strconv.ParseInt(paramStr, 0, 64); err == nil {
		return val
	}
	if val, err := strconv.ParseFloat(paramStr, 64); err == nil {
		return val
	}
	return strings.Trim(paramStr, `"'`)
}

func paramInt(p any) (int64, bool) {
	switch v := p.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func asBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("expected bytes, got %T", v)
}

func tryMapXOR(value any, params []any) (any, error) {
	data, err := asBytes(value)
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("xor requires at least one key byte")
	}
	key := make([]byte, len(params))
	for i, p := range params {
		n, ok := paramInt(p)
		if !ok {
			return nil, fmt.Errorf("invalid xor key type at index %d: %T", i, p)
		}
		if n < 0 || n > 0xff {
			return nil, fmt.Errorf("xor key at index %d out of byte range: %d", i, n)
		}
		key[i] = byte(n)
	}
	return kaitai.ProcessXOR(data, key), nil
}

func tryMapZlib(value any, _ []any) (any, error) {
	data, err := asBytes(value)
	if err != nil {
		return nil, err
	}
	return kaitai.ProcessZlib(data)
}

// tryMapLZ4 decompresses a raw LZ4 block. The single param is the
// decompressed size, which block format does not record.
func tryMapLZ4(value any, params []any) (any, error) {
	data, err := asBytes(value)
	if err != nil {
		return nil, err
	}
	if len(params) != 1 {
		return nil, fmt.Errorf("lz4 requires the decompressed size")
	}
	size, ok := paramInt(params[0])
	if !ok || size < 0 {
		return nil, fmt.Errorf("invalid lz4 size: %v", params[0])
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return out[:n], nil
}

func tryMapRotate(value any, params []any) (any, error) {
	data, err := asBytes(value)
	if err != nil {
		return nil, err
	}
	if len(params) != 1 {
		return nil, fmt.Errorf("rotate requires exactly one parameter")
	}
	amount, ok := paramInt(params[0])
	if !ok {
		return nil, fmt.Errorf("invalid rotate amount type: %T", params[0])
	}
	if amount >= 0 {
		return kaitai.ProcessRotateLeft(data, int(amount)), nil
	}
	return kaitai.ProcessRotateRight(data, int(-amount)), nil
}

func tryMapUTF8(value any, _ []any) (any, error) {
	data, err := asBytes(value)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("invalid UTF-8")
	}
	return string(data), nil
}

func tryMapNonZero(value any, _ []any) (any, error) {
	n, ok := toInt64(value)
	if !ok {
		if u, isUint := value.(uint64); isUint && u != 0 {
			return value, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", value)
	}
	if n == 0 {
		return nil, fmt.Errorf("value must be non-zero")
	}
	return value, nil
}
