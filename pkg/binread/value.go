package binread

import (
	"math"

	"github.com/Velocidex/ordereddict"
	"github.com/goccy/go-json"
)

// Decoded values are plain Go values:
//
//	integers      uint8..uint64, int8..int64
//	floats        float32, float64
//	bytes         []byte
//	strings       string
//	vec<T>        []any
//	struct        *ordereddict.Dict in field order
//	enum          *EnumValue
//	punctuated    *Punctuated
//	ptrN<T>       *FilePtr
//	unit, skipped nil

// EnumValue is the result of reading an enum. Unit variants have no fields.
type EnumValue struct {
	Variant string
	Fields  *ordereddict.Dict
}

func (e *EnumValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToNative(e))
}

// FilePtr is a pointer read from the stream. Value is nil until the
// pointer is linked.
type FilePtr struct {
	Ptr   uint64
	Value any

	target TypeRef
}

func (p *FilePtr) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToNative(p))
}

// ToNative converts a decoded value into maps, slices and scalars only.
// Structs become map[string]any, enums become {"variant": name, ...fields}
// (unit variants become the variant name), pointers become their target
// value and punctuated sequences become their items.
func ToNative(v any) any {
	switch val := v.(type) {
	case *ordereddict.Dict:
		if val == nil {
			return nil
		}
		out := make(map[string]any, len(val.Keys()))
		for _, k := range val.Keys() {
			item, _ := val.Get(k)
			out[k] = ToNative(item)
		}
		return out
	case *EnumValue:
		if val.Fields == nil {
			return val.Variant
		}
		out := ToNative(val.Fields).(map[string]any)
		out["variant"] = val.Variant
		return out
	case *FilePtr:
		if val.Value == nil {
			return val.Ptr
		}
		return ToNative(val.Value)
	case *Punctuated:
		return ToNative(val.Items)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ToNative(item)
		}
		return out
	default:
		return v
	}
}

// exprValue converts a decoded value into the shape expressions see:
// integers widen to int64 (uint64 above MaxInt64), float32 widens, records
// become maps. Enum records carry their variant name under `variant`.
func exprValue(v any) any {
	switch val := v.(type) {
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		if val <= math.MaxInt64 {
			return int64(val)
		}
		return val
	case float32:
		return float64(val)
	case *ordereddict.Dict:
		if val == nil {
			return nil
		}
		out := make(map[string]any, len(val.Keys()))
		for _, k := range val.Keys() {
			item, _ := val.Get(k)
			out[k] = exprValue(item)
		}
		return out
	case *EnumValue:
		out := map[string]any{}
		if val.Fields != nil {
			out = exprValue(val.Fields).(map[string]any)
		}
		out["variant"] = val.Variant
		return out
	case *FilePtr:
		if val.Value == nil {
			return exprValue(val.Ptr)
		}
		return exprValue(val.Value)
	case *Punctuated:
		return exprValue(val.Items)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = exprValue(item)
		}
		return out
	default:
		return v
	}
}
