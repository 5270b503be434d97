package binread

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a read failure.
type ErrorKind int

const (
	KindIo ErrorKind = iota + 1
	KindAssertion
	KindBadMagic
	KindNoVariantMatch
	KindEnumErrors
	KindCustom
	KindMissingOption
	KindExpression
)

// Sentinels for errors.Is. Each *Error matches the sentinel of its kind.
var (
	ErrIo            = errors.New("binread: io failure")
	ErrAssertion     = errors.New("binread: assertion failed")
	ErrBadMagic      = errors.New("binread: bad magic")
	ErrNoVariant     = errors.New("binread: no variant matched")
	ErrEnumErrors    = errors.New("binread: all variants failed")
	ErrCustom        = errors.New("binread: custom error")
	ErrMissingOption = errors.New("binread: missing required option")
	ErrExpression    = errors.New("binread: expression failed")
)

func (k ErrorKind) String() string {
	switch k {
	case KindIo:
		return "Io"
	case KindAssertion:
		return "AssertFail"
	case KindBadMagic:
		return "BadMagic"
	case KindNoVariantMatch:
		return "NoVariantMatch"
	case KindEnumErrors:
		return "EnumErrors"
	case KindCustom:
		return "Custom"
	case KindMissingOption:
		return "MissingRequiredOption"
	case KindExpression:
		return "Expression"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindIo:
		return ErrIo
	case KindAssertion:
		return ErrAssertion
	case KindBadMagic:
		return ErrBadMagic
	case KindNoVariantMatch:
		return ErrNoVariant
	case KindEnumErrors:
		return ErrEnumErrors
	case KindCustom:
		return ErrCustom
	case KindMissingOption:
		return ErrMissingOption
	case KindExpression:
		return ErrExpression
	}
	return nil
}

// VariantError is one entry of an EnumErrors basket.
type VariantError struct {
	Variant string
	Err     error
}

// Error is the failure type of every read operation. Pos is the stream
// position the failure is attributed to.
type Error struct {
	Kind ErrorKind
	Pos  int64

	// Expr is the source of the failing assertion or expression.
	Expr string
	// Message is the optional assertion message.
	Message string
	// Found holds the magic value actually read.
	Found any
	// Option names the missing option.
	Option string
	// Variants holds every per-variant failure for KindEnumErrors.
	Variants []VariantError

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindIo:
		fmt.Fprintf(&b, "io error at 0x%x: %v", e.Pos, e.Err)
	case KindAssertion:
		fmt.Fprintf(&b, "assertion failed at 0x%x: %s", e.Pos, e.Expr)
		if e.Message != "" {
			fmt.Fprintf(&b, ": %s", e.Message)
		}
	case KindBadMagic:
		fmt.Fprintf(&b, "bad magic at 0x%x: found %s", e.Pos, formatMagicValue(e.Found))
	case KindNoVariantMatch:
		fmt.Fprintf(&b, "no variant matched at 0x%x", e.Pos)
		if e.Err != nil {
			fmt.Fprintf(&b, ": %v", e.Err)
		}
	case KindEnumErrors:
		fmt.Fprintf(&b, "no variant matched at 0x%x:", e.Pos)
		for _, v := range e.Variants {
			fmt.Fprintf(&b, "\n  %s: %s", v.Variant, strings.ReplaceAll(v.Err.Error(), "\n", "\n  "))
		}
	case KindCustom:
		fmt.Fprintf(&b, "error at 0x%x: %v", e.Pos, e.Err)
	case KindMissingOption:
		fmt.Fprintf(&b, "missing required option %q at 0x%x", e.Option, e.Pos)
	case KindExpression:
		fmt.Fprintf(&b, "evaluating %q at 0x%x: %v", e.Expr, e.Pos, e.Err)
	default:
		fmt.Fprintf(&b, "%s at 0x%x", e.Kind, e.Pos)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func formatMagicValue(v any) string {
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("% x", b)
	}
	return fmt.Sprintf("%#x", v)
}

func ioError(pos int64, err error) *Error {
	return &Error{Kind: KindIo, Pos: pos, Err: err}
}

func missingOption(pos int64, name string) *Error {
	return &Error{Kind: KindMissingOption, Pos: pos, Option: name}
}

// customError attributes err to pos unless it already carries a position.
func customError(pos int64, err error) error {
	var berr *Error
	if errors.As(err, &berr) {
		return err
	}
	return &Error{Kind: KindCustom, Pos: pos, Err: err}
}

// CustomError wraps err as a KindCustom failure at pos. Parse and try-map
// functions can return it to attribute a failure to a specific position.
func CustomError(pos int64, err error) *Error {
	return &Error{Kind: KindCustom, Pos: pos, Err: err}
}
