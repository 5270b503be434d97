// Package exprlang evaluates schema expressions with expr-lang. It is the
// alternative to the CEL engine for schemas that set `expr-engine: expr`.
package exprlang

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/twinfer/binread-plugin/internal/cel"
)

// ExpressionPool caches compiled expr-lang programs by source text.
type ExpressionPool struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
	options  []expr.Option
}

// NewExpressionPool creates a pool whose programs tolerate undefined
// variables; they evaluate to nil instead of failing to compile.
func NewExpressionPool(opts ...expr.Option) *ExpressionPool {
	base := []expr.Option{expr.AllowUndefinedVariables()}
	return &ExpressionPool{
		programs: make(map[string]*vm.Program),
		options:  append(base, opts...),
	}
}

// GetExpression retrieves or compiles an expression.
func (p *ExpressionPool) GetExpression(src string) (*vm.Program, error) {
	p.mu.RLock()
	if program, ok := p.programs[src]; ok {
		p.mu.RUnlock()
		return program, nil
	}
	p.mu.RUnlock()

	program, err := expr.Compile(src, append(p.options, expr.Env(freeVariables(src)))...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", src, err)
	}

	p.mu.Lock()
	p.programs[src] = program
	p.mu.Unlock()

	return program, nil
}

// freeVariables declares every free identifier of src so that field names
// such as `count` or `len` resolve to the field and not to the builtin of
// the same name. Identifiers in call position keep their builtin meaning.
func freeVariables(src string) map[string]any {
	env := make(map[string]any)
	for _, name := range cel.ExtractVariables(src) {
		env[name] = nil
	}
	return env
}

// EvaluateExpression runs a compiled program against params.
func (p *ExpressionPool) EvaluateExpression(program *vm.Program, params map[string]any) (any, error) {
	if params == nil {
		params = make(map[string]any)
	}

	result, err := expr.Run(program, params)
	if err != nil {
		return nil, fmt.Errorf("expression evaluation error: %w", err)
	}
	return result, nil
}
