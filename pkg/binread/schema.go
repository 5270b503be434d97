package binread

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema is a parsed YAML format description. Fields and variants given at
// the top level form an inline type named by meta.id.
type Schema struct {
	Meta    Meta                `yaml:"meta"`
	TypeDef `yaml:",inline"`
	Types   map[string]*TypeDef `yaml:"types"`
}

// Meta holds schema-wide settings.
type Meta struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title,omitempty"`
	Endian     string `yaml:"endian,omitempty"`
	ExprEngine string `yaml:"expr-engine,omitempty"`
	Root       string `yaml:"root,omitempty"`
}

// TypeDef describes a struct (seq), an enum (variants) or a type read as
// another type and converted (read-as with map or try-map).
type TypeDef struct {
	Endian       string         `yaml:"endian,omitempty"`
	Magic        *Magic         `yaml:"magic,omitempty"`
	Params       []string       `yaml:"params,omitempty"`
	PreAssert    []AssertionDef `yaml:"pre-assert,omitempty"`
	Assert       []AssertionDef `yaml:"assert,omitempty"`
	Seq          []FieldDef     `yaml:"seq,omitempty"`
	Repr         string         `yaml:"repr,omitempty"`
	Variants     []VariantDef   `yaml:"variants,omitempty"`
	ReturnErrors string         `yaml:"return-errors,omitempty"`
	ReadAs       string         `yaml:"read-as,omitempty"`
	Map          Expr           `yaml:"map,omitempty"`
	TryMap       string         `yaml:"try-map,omitempty"`
	Doc          string         `yaml:"doc,omitempty"`
}

// VariantDef is one alternative of an enum. A variant without seq is a
// unit variant.
type VariantDef struct {
	ID        string         `yaml:"id"`
	Value     *int64         `yaml:"value,omitempty"`
	Magic     *Magic         `yaml:"magic,omitempty"`
	Endian    string         `yaml:"endian,omitempty"`
	PreAssert []AssertionDef `yaml:"pre-assert,omitempty"`
	Assert    []AssertionDef `yaml:"assert,omitempty"`
	Seq       []FieldDef     `yaml:"seq,omitempty"`
	Doc       string         `yaml:"doc,omitempty"`
}

// FieldDef is one field of a struct or variant with its directives.
type FieldDef struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type,omitempty"`

	Endian      string `yaml:"endian,omitempty"`
	IsBig       Expr   `yaml:"is-big,omitempty"`
	IsLittle    Expr   `yaml:"is-little,omitempty"`
	Count       Expr   `yaml:"count,omitempty"`
	Offset      Expr   `yaml:"offset,omitempty"`
	OffsetAfter Expr   `yaml:"offset-after,omitempty"`

	If        Expr   `yaml:"if,omitempty"`
	Default   bool   `yaml:"default,omitempty"`
	Ignore    bool   `yaml:"ignore,omitempty"`
	Calc      Expr   `yaml:"calc,omitempty"`
	Map       Expr   `yaml:"map,omitempty"`
	TryMap    string `yaml:"try-map,omitempty"`
	ParseWith string `yaml:"parse-with,omitempty"`
	Args      []Expr `yaml:"args,omitempty"`
	Try       bool   `yaml:"try,omitempty"`

	Assert []AssertionDef `yaml:"assert,omitempty"`

	PadBefore       Expr `yaml:"pad-before,omitempty"`
	PadAfter        Expr `yaml:"pad-after,omitempty"`
	AlignBefore     Expr `yaml:"align-before,omitempty"`
	AlignAfter      Expr `yaml:"align-after,omitempty"`
	PadSizeTo       Expr `yaml:"pad-size-to,omitempty"`
	SeekBefore      Expr `yaml:"seek-before,omitempty"`
	RestorePosition bool `yaml:"restore-position,omitempty"`

	DerefNow       bool `yaml:"deref-now,omitempty"`
	PostprocessNow bool `yaml:"postprocess-now,omitempty"`
	Temp           bool `yaml:"temp,omitempty"`

	Doc string `yaml:"doc,omitempty"`
}

// Expr is expression source text. YAML scalars of any tag are accepted, so
// `count: 3` and `if: true` work without quoting.
type Expr string

func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expression must be a scalar", node.Line)
	}
	*e = Expr(node.Value)
	return nil
}

// AssertionDef is an assertion with an optional failure message. It is
// written as a bare expression or as a mapping with expr and message.
type AssertionDef struct {
	Expr    Expr   `yaml:"expr"`
	Message string `yaml:"message,omitempty"`
}

func (a *AssertionDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		a.Expr = Expr(node.Value)
		return nil
	}
	type plain AssertionDef
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	if p.Expr == "" {
		return fmt.Errorf("line %d: assertion requires expr", node.Line)
	}
	*a = AssertionDef(p)
	return nil
}

// LoadSchema parses a YAML schema.
func LoadSchema(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}
	return &schema, nil
}

// LoadSchemaFile reads and parses a YAML schema file.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	schema, err := LoadSchema(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schema, nil
}
