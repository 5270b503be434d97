package binread

import "fmt"

// ErrorMode selects how a backtracking enum reports failure when no
// variant matches.
type ErrorMode int

const (
	// ErrorModeAll collects every variant's failure into a KindEnumErrors
	// error.
	ErrorModeAll ErrorMode = iota
	// ErrorModeUnexpected tries every variant and reports KindNoVariantMatch.
	ErrorModeUnexpected
	// ErrorModeTerminal stops at the first failing variant and reports
	// KindNoVariantMatch.
	ErrorModeTerminal
)

// ParseErrorMode parses a return-errors value; empty means all.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch s {
	case "", "all":
		return ErrorModeAll, nil
	case "unexpected":
		return ErrorModeUnexpected, nil
	case "terminal":
		return ErrorModeTerminal, nil
	}
	return ErrorModeAll, fmt.Errorf("unknown return-errors mode %q", s)
}

type assertion struct {
	expr    Expression
	message string
}

// endianSpec is a field's byte order override: fixed, or chosen at read
// time by a condition.
type endianSpec struct {
	set       bool
	fixed     Endian
	cond      Expression
	whenTrue  Endian
	whenFalse Endian
}

// fieldAction is how a field obtains its raw value. Exactly one applies.
type fieldAction interface {
	actionName() string
}

// ignoreAction produces the type's zero value without reading or binding.
type ignoreAction struct{}

// defaultAction produces the type's zero value without reading.
type defaultAction struct{}

type calcAction struct {
	expr Expression
}

type customAction struct {
	name string
	fn   ParseFunc
}

type normalAction struct{}

func (ignoreAction) actionName() string  { return "ignore" }
func (defaultAction) actionName() string { return "default" }
func (calcAction) actionName() string    { return "calc" }
func (customAction) actionName() string  { return "parse-with" }
func (normalAction) actionName() string  { return "read" }

type fieldPlan struct {
	name    string
	typ     TypeRef
	hasType bool
	action  fieldAction

	endian      endianSpec
	count       Expression
	offset      Expression
	offsetAfter Expression
	cond        Expression
	args        []Expression

	mapExpr    Expression
	tryMap     func(any) (any, error)
	tryMapSpec string
	try        bool

	asserts []assertion

	padBefore   Expression
	padAfter    Expression
	alignBefore Expression
	alignAfter  Expression
	padSizeTo   Expression
	seekBefore  Expression

	restorePosition bool
	derefNow        bool
	temp            bool
}

// linkable reports whether the value may contain pointers that need the
// after-parse link step. Mapped, computed and custom values never do.
func (f *fieldPlan) linkable() bool {
	_, normal := f.action.(normalAction)
	return normal && f.mapExpr == nil && f.tryMap == nil
}

// reads reports whether the field's action consumes input.
func (f *fieldPlan) reads() bool {
	switch f.action.(type) {
	case normalAction, customAction:
		return true
	}
	return false
}

func (f *fieldPlan) deferred() bool {
	return f.linkable() && !f.derefNow
}

// bodyPlan is the layout shared by structs and data variants.
type bodyPlan struct {
	name       string
	endian     *Endian
	magic      *Magic
	params     []string
	preAsserts []assertion
	asserts    []assertion
	fields     []*fieldPlan
}

type variantStrategy int

const (
	strategyBacktrack variantStrategy = iota
	strategyDiscriminant
	strategyMagic
)

func (s variantStrategy) String() string {
	switch s {
	case strategyDiscriminant:
		return "discriminant"
	case strategyMagic:
		return "magic"
	}
	return "backtrack"
}

type variantPlan struct {
	name         string
	discriminant int64
	magic        *Magic
	unit         bool
	body         *bodyPlan
}

// mappedPlan reads a type as another type and converts the result. body
// carries the type's magic, params and assertions; it has no fields.
type mappedPlan struct {
	from       TypeRef
	body       *bodyPlan
	mapExpr    Expression
	tryMap     func(any) (any, error)
	tryMapSpec string
}

type typePlan struct {
	name   string
	params []string
	endian *Endian

	// struct
	body *bodyPlan

	// read-as
	mapped *mappedPlan

	// enum
	isEnum    bool
	repr      TypeRef
	variants  []*variantPlan
	strategy  variantStrategy
	errorMode ErrorMode
}
