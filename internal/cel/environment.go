package cel

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// NewEnvironment creates the base CEL environment used for schema expressions.
// Field names are declared per expression by the pool.
func NewEnvironment() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.CustomTypeAdapter(NewFieldTypeAdapter()),
		cel.StdLib(),
		BitwiseFunctions(),
		ErrorHandlingFunctions(),
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return env, nil
}

func ErrorHandlingFunctions() cel.EnvOption {
	return cel.Lib(&errorLib{})
}

type errorLib struct{}

func (*errorLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("error",
			cel.Overload("error_string", []*cel.Type{cel.StringType}, cel.DynType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					msg, ok := val.(types.String)
					if !ok {
						return types.NewErr("expected string for error message")
					}
					return types.NewErr("%s", msg)
				}),
			),
		),
	}
}

func (*errorLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

// FieldTypeAdapter maps decoded field values onto CEL values. Every integer
// that fits in int64 becomes a CEL int so that mixed-width arithmetic such as
// `count + 1` or `len * 2` type-checks at runtime.
type FieldTypeAdapter struct {
	types.Adapter
}

func NewFieldTypeAdapter() *FieldTypeAdapter {
	return &FieldTypeAdapter{
		Adapter: types.DefaultTypeAdapter,
	}
}

func (a *FieldTypeAdapter) NativeToValue(value any) ref.Val {
	switch v := value.(type) {
	case int8:
		return types.Int(v)
	case int16:
		return types.Int(v)
	case int32:
		return types.Int(v)
	case int:
		return types.Int(v)
	case uint8:
		return types.Int(v)
	case uint16:
		return types.Int(v)
	case uint32:
		return types.Int(v)
	case uint:
		if uint64(v) <= maxInt64 {
			return types.Int(v)
		}
		return types.Uint(v)
	case uint64:
		if v <= maxInt64 {
			return types.Int(v)
		}
		return types.Uint(v)
	case float32:
		return types.Double(v)
	case []any:
		return types.NewDynamicList(a, v)
	case map[string]any:
		return types.NewStringInterfaceMap(a, v)
	default:
		return a.Adapter.NativeToValue(value)
	}
}

const maxInt64 = uint64(1<<63 - 1)
