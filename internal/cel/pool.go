// pool.go
package cel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// ExpressionPool caches compiled CEL programs by source text.
type ExpressionPool struct {
	mu          sync.RWMutex
	expressions map[string]cel.Program
	env         *cel.Env
}

// NewExpressionPool creates a new expression pool with the default environment.
func NewExpressionPool() (*ExpressionPool, error) {
	env, err := NewEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}

	return &ExpressionPool{
		env:         env,
		expressions: make(map[string]cel.Program),
	}, nil
}

// NewExpressionPoolWithEnv creates a new expression pool with a custom CEL environment.
func NewExpressionPoolWithEnv(env *cel.Env) (*ExpressionPool, error) {
	if env == nil {
		return nil, fmt.Errorf("CEL environment cannot be nil")
	}

	return &ExpressionPool{
		env:         env,
		expressions: make(map[string]cel.Program),
	}, nil
}

// GetExpression retrieves or compiles an expression. Every free identifier
// in the source is declared as a dynamically typed variable, so field names
// never need to be known up front.
func (e *ExpressionPool) GetExpression(exprStr string) (cel.Program, error) {
	e.mu.RLock()
	if program, ok := e.expressions[exprStr]; ok {
		e.mu.RUnlock()
		return program, nil
	}
	e.mu.RUnlock()

	vars := ExtractVariables(exprStr)

	envOpts := make([]cel.EnvOption, 0, len(vars))
	for _, varName := range vars {
		envOpts = append(envOpts, cel.Variable(varName, cel.DynType))
	}

	extEnv, err := e.env.Extend(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to extend environment: %w", err)
	}

	ast, issues := extEnv.Compile(exprStr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", exprStr, issues.Err())
	}

	program, err := extEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	e.mu.Lock()
	e.expressions[exprStr] = program
	e.mu.Unlock()

	return program, nil
}

// EvaluateExpression evaluates a compiled expression with parameters.
// A declared variable missing from params is an evaluation error.
func (e *ExpressionPool) EvaluateExpression(program cel.Program, params map[string]any) (any, error) {
	if params == nil {
		params = make(map[string]any)
	}

	activation, err := cel.NewActivation(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation: %w", err)
	}

	val, _, err := program.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("expression evaluation error: %w", err)
	}

	return ConvertFromRefVal(val)
}

// adaptCELResult converts CEL result values to Go native types.
func adaptCELResult(val ref.Val) any {
	switch v := val.(type) {
	case types.Int:
		return int64(v)
	case types.Uint:
		return uint64(v)
	case types.Double:
		return float64(v)
	case types.Bool:
		return bool(v)
	case types.String:
		return string(v)
	case types.Bytes:
		return []byte(v)
	case types.Null:
		return nil
	case traits.Lister:
		size, _ := v.Size().(types.Int)
		result := make([]any, 0, int(size))
		for i := types.Int(0); i < size; i++ {
			result = append(result, adaptCELResult(v.Get(i)))
		}
		return result
	case traits.Mapper:
		result := make(map[string]any)
		it := v.Iterator()
		for it.HasNext() == types.True {
			key := it.Next()
			keyStr, ok := key.Value().(string)
			if !ok {
				keyStr = fmt.Sprintf("%v", key.Value())
			}
			result[keyStr] = adaptCELResult(v.Get(key))
		}
		return result
	default:
		return v.Value()
	}
}

// ExtractVariables returns the free identifiers of a CEL expression in order
// of first appearance. Member selections (`a.b` yields only `a`), function
// names and string literal contents are skipped.
func ExtractVariables(expr string) []string {
	keywords := map[string]bool{
		"true":  true,
		"false": true,
		"null":  true,
		"in":    true,
	}

	var vars []string
	seen := make(map[string]bool)

	runes := []rune(expr)
	for i := 0; i < len(runes); {
		c := runes[i]

		if c == '"' || c == '\'' {
			i = skipQuoted(runes, i)
			continue
		}

		if !isIdentStart(c) {
			// Numeric literals such as 0x1f or 10u must not yield identifiers.
			if c >= '0' && c <= '9' {
				for i < len(runes) && isIdentChar(runes[i]) {
					i++
				}
				continue
			}
			i++
			continue
		}

		start := i
		for i < len(runes) && isIdentChar(runes[i]) {
			i++
		}
		word := string(runes[start:i])

		// Raw and bytes string prefixes: r"..", b'..', br"..".
		if i < len(runes) && (runes[i] == '"' || runes[i] == '\'') && len(word) <= 2 && strings.Trim(strings.ToLower(word), "br") == "" {
			continue
		}
		if precededByDot(runes, start) || followedByParen(runes, i) {
			continue
		}
		if keywords[word] || seen[word] {
			continue
		}
		seen[word] = true
		vars = append(vars, word)
	}

	return vars
}

func isIdentStart(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentChar(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func skipQuoted(runes []rune, i int) int {
	quote := runes[i]
	i++
	for i < len(runes) {
		switch runes[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1
		}
		i++
	}
	return i
}

func precededByDot(runes []rune, start int) bool {
	for j := start - 1; j >= 0; j-- {
		switch runes[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '.':
			return true
		default:
			return false
		}
	}
	return false
}

func followedByParen(runes []rune, end int) bool {
	for j := end; j < len(runes); j++ {
		switch runes[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '(':
			return true
		default:
			return false
		}
	}
	return false
}

// ConvertToRefVal converts a Go value to a CEL ref.Val.
func ConvertToRefVal(val any) ref.Val {
	return NewFieldTypeAdapter().NativeToValue(val)
}

// ConvertFromRefVal converts a CEL ref.Val to a Go value.
func ConvertFromRefVal(val ref.Val) (any, error) {
	if val == nil {
		return nil, nil
	}

	if types.IsError(val) {
		return nil, fmt.Errorf("CEL error: %v", val)
	}

	if types.IsUnknown(val) {
		return nil, fmt.Errorf("unknown CEL value")
	}

	return adaptCELResult(val), nil
}
