package binread

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr/vm"
	"github.com/google/cel-go/cel"

	internalcel "github.com/twinfer/binread-plugin/internal/cel"
	"github.com/twinfer/binread-plugin/internal/exprlang"
)

// Expression is a compiled schema expression.
type Expression interface {
	Source() string
	Eval(vars map[string]any) (any, error)
}

// ExprEngine compiles expression source into Expressions.
type ExprEngine interface {
	Name() string
	Compile(src string) (Expression, error)
}

// NewExprEngine returns the engine for a meta.expr-engine value. CEL is the
// default.
func NewExprEngine(name string) (ExprEngine, error) {
	switch name {
	case "", "cel":
		return NewCELEngine()
	case "expr", "expr-lang":
		return NewExprLangEngine(), nil
	}
	return nil, fmt.Errorf("unknown expression engine %q", name)
}

type celEngine struct {
	pool *internalcel.ExpressionPool
}

// NewCELEngine returns an engine backed by cel-go.
func NewCELEngine() (ExprEngine, error) {
	pool, err := internalcel.NewExpressionPool()
	if err != nil {
		return nil, err
	}
	return &celEngine{pool: pool}, nil
}

func (e *celEngine) Name() string { return "cel" }

func (e *celEngine) Compile(src string) (Expression, error) {
	program, err := e.pool.GetExpression(src)
	if err != nil {
		return nil, err
	}
	return &celExpression{src: src, program: program, pool: e.pool}, nil
}

type celExpression struct {
	src     string
	program cel.Program
	pool    *internalcel.ExpressionPool
}

func (x *celExpression) Source() string { return x.src }

func (x *celExpression) Eval(vars map[string]any) (any, error) {
	return x.pool.EvaluateExpression(x.program, vars)
}

type exprLangEngine struct {
	pool *exprlang.ExpressionPool
}

// NewExprLangEngine returns an engine backed by expr-lang.
func NewExprLangEngine() ExprEngine {
	return &exprLangEngine{pool: exprlang.NewExpressionPool()}
}

func (e *exprLangEngine) Name() string { return "expr" }

func (e *exprLangEngine) Compile(src string) (Expression, error) {
	program, err := e.pool.GetExpression(src)
	if err != nil {
		return nil, err
	}
	return &exprLangExpression{src: src, program: program, pool: e.pool}, nil
}

type exprLangExpression struct {
	src     string
	program *vm.Program
	pool    *exprlang.ExpressionPool
}

func (x *exprLangExpression) Source() string { return x.src }

func (x *exprLangExpression) Eval(vars map[string]any) (any, error) {
	return x.pool.EvaluateExpression(x.program, vars)
}

func exprError(pos int64, x Expression, err error) *Error {
	return &Error{Kind: KindExpression, Pos: pos, Expr: x.Source(), Err: err}
}

// eval runs x against vars, attributing failures to the current position.
func eval(src *Source, x Expression, vars map[string]any) (any, error) {
	v, err := x.Eval(vars)
	if err != nil {
		pos, _ := src.Pos()
		return nil, exprError(pos, x, err)
	}
	return v, nil
}

func evalBool(src *Source, x Expression, vars map[string]any) (bool, error) {
	v, err := eval(src, x, vars)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		pos, _ := src.Pos()
		return false, exprError(pos, x, fmt.Errorf("expected bool, got %T", v))
	}
	return b, nil
}

func evalInt(src *Source, x Expression, vars map[string]any) (int64, error) {
	v, err := eval(src, x, vars)
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		pos, _ := src.Pos()
		return 0, exprError(pos, x, fmt.Errorf("expected integer, got %T", v))
	}
	return n, nil
}

func evalUint(src *Source, x Expression, vars map[string]any) (uint64, error) {
	v, err := eval(src, x, vars)
	if err != nil {
		return 0, err
	}
	n, ok := toUint64(v)
	if !ok {
		pos, _ := src.Pos()
		return 0, exprError(pos, x, fmt.Errorf("expected non-negative integer, got %v (%T)", v, v))
	}
	return n, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	i, ok := toInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}
