package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// BitwiseFunctions returns the bitAnd, bitOr, bitXor, shl and shr helpers.
// CEL has no bitwise operators, and flag fields need them.
func BitwiseFunctions() cel.EnvOption {
	return cel.Lib(&bitwiseLib{})
}

// performBitwiseOp promotes both operands to uint64 and narrows the result
// back to int when it fits.
func performBitwiseOp(lhs, rhs ref.Val, op func(uint64, uint64) uint64) ref.Val {
	l, lOk := toBits(lhs)
	r, rOk := toBits(rhs)
	if !lOk || !rOk {
		return types.NewErr("bitwise arguments must be integers, got %v and %v", lhs.Type(), rhs.Type())
	}

	result := op(l, r)
	if result <= maxInt64 {
		return types.Int(result)
	}
	return types.Uint(result)
}

func toBits(v ref.Val) (uint64, bool) {
	switch n := v.(type) {
	case types.Int:
		return uint64(n), true
	case types.Uint:
		return uint64(n), true
	}
	return 0, false
}

func shiftAmount(v ref.Val) (uint64, ref.Val) {
	n, ok := v.(types.Int)
	if !ok {
		return 0, types.NewErr("shift amount must be an int, got %v", v.Type())
	}
	if n < 0 {
		return 0, types.NewErr("shift amount cannot be negative: %d", n)
	}
	return uint64(n), nil
}

type bitwiseLib struct{}

func (*bitwiseLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("bitAnd",
			cel.Overload("bitand_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					return performBitwiseOp(lhs, rhs, func(a, b uint64) uint64 { return a & b })
				}),
			),
		),
		cel.Function("bitOr",
			cel.Overload("bitor_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					return performBitwiseOp(lhs, rhs, func(a, b uint64) uint64 { return a | b })
				}),
			),
		),
		cel.Function("bitXor",
			cel.Overload("bitxor_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					return performBitwiseOp(lhs, rhs, func(a, b uint64) uint64 { return a ^ b })
				}),
			),
		),
		cel.Function("shl",
			cel.Overload("shl_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					n, errVal := shiftAmount(rhs)
					if errVal != nil {
						return errVal
					}
					return performBitwiseOp(lhs, types.Int(0), func(a, _ uint64) uint64 { return a << n })
				}),
			),
		),
		cel.Function("shr",
			cel.Overload("shr_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					n, errVal := shiftAmount(rhs)
					if errVal != nil {
						return errVal
					}
					return performBitwiseOp(lhs, types.Int(0), func(a, _ uint64) uint64 { return a >> n })
				}),
			),
		),
	}
}

func (*bitwiseLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}
