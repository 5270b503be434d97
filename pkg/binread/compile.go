package binread

import (
	"fmt"
	"slices"
	"strings"
)

// program is a compiled schema: every type resolved to a plan and every
// expression compiled once.
type program struct {
	types  map[string]*typePlan
	root   string
	endian Endian
	engine ExprEngine
}

type compiler struct {
	engine   ExprEngine
	registry *Registry
	types    map[string]*typePlan
}

func compile(schema *Schema, registry *Registry) (*program, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is nil")
	}

	engine, err := NewExprEngine(schema.Meta.ExprEngine)
	if err != nil {
		return nil, err
	}
	endian, err := ParseEndian(schema.Meta.Endian)
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}

	defs := make(map[string]*TypeDef, len(schema.Types)+1)
	for name, def := range schema.Types {
		if def == nil {
			return nil, fmt.Errorf("type %s: empty definition", name)
		}
		defs[name] = def
	}
	if len(schema.Seq) > 0 || len(schema.Variants) > 0 || schema.ReadAs != "" {
		if schema.Meta.ID == "" {
			return nil, fmt.Errorf("meta.id is required when seq, variants or read-as are given at the top level")
		}
		if _, dup := defs[schema.Meta.ID]; dup {
			return nil, fmt.Errorf("type %s is defined both inline and under types", schema.Meta.ID)
		}
		inline := schema.TypeDef
		defs[schema.Meta.ID] = &inline
	}

	c := &compiler{
		engine:   engine,
		registry: registry,
		types:    make(map[string]*typePlan, len(defs)),
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		if _, builtin := builtinTypes[name]; builtin {
			return nil, fmt.Errorf("type name %q shadows a builtin type", name)
		}
		c.types[name] = &typePlan{name: name}
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := c.compileType(c.types[name], defs[name]); err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
	}

	root := schema.Meta.Root
	if root == "" {
		root = schema.Meta.ID
	}
	if root != "" {
		if _, ok := c.types[root]; !ok {
			return nil, fmt.Errorf("root type %q is not defined", root)
		}
	}

	return &program{
		types:  c.types,
		root:   root,
		endian: endian,
		engine: engine,
	}, nil
}

func (c *compiler) expr(src Expr) (Expression, error) {
	if src == "" {
		return nil, nil
	}
	return c.engine.Compile(string(src))
}

func (c *compiler) assertions(defs []AssertionDef) ([]assertion, error) {
	out := make([]assertion, 0, len(defs))
	for _, d := range defs {
		x, err := c.expr(d.Expr)
		if err != nil {
			return nil, err
		}
		if x == nil {
			return nil, fmt.Errorf("empty assertion")
		}
		out = append(out, assertion{expr: x, message: d.Message})
	}
	return out, nil
}

func (c *compiler) compileType(t *typePlan, def *TypeDef) error {
	t.params = def.Params
	if def.Endian != "" {
		e, err := ParseEndian(def.Endian)
		if err != nil {
			return err
		}
		t.endian = &e
	}

	preAsserts, err := c.assertions(def.PreAssert)
	if err != nil {
		return fmt.Errorf("pre-assert: %w", err)
	}
	asserts, err := c.assertions(def.Assert)
	if err != nil {
		return fmt.Errorf("assert: %w", err)
	}

	if def.ReadAs != "" || def.Map != "" || def.TryMap != "" {
		return c.compileMapped(t, def, preAsserts, asserts)
	}

	if len(def.Variants) == 0 {
		if def.Repr != "" {
			return fmt.Errorf("repr is only valid on enums")
		}
		fields, err := c.compileFields(def.Seq)
		if err != nil {
			return err
		}
		t.body = &bodyPlan{
			name:       t.name,
			magic:      def.Magic,
			params:     def.Params,
			preAsserts: preAsserts,
			asserts:    asserts,
			fields:     fields,
		}
		return nil
	}

	if len(def.Seq) > 0 {
		return fmt.Errorf("a type cannot have both seq and variants")
	}
	t.isEnum = true

	t.errorMode, err = ParseErrorMode(def.ReturnErrors)
	if err != nil {
		return err
	}
	hasRepr := def.Repr != ""
	if hasRepr {
		ref, err := ParseTypeRef(def.Repr)
		if err != nil {
			return err
		}
		if _, ok := intKinds[ref.Name]; !ok || len(ref.Params) > 0 {
			return fmt.Errorf("repr must be an integer type, got %s", def.Repr)
		}
		t.repr = ref
	}

	seen := make(map[string]bool, len(def.Variants))
	next := int64(0)
	for _, vdef := range def.Variants {
		if vdef.ID == "" {
			return fmt.Errorf("variant without id")
		}
		if seen[vdef.ID] {
			return fmt.Errorf("duplicate variant %q", vdef.ID)
		}
		seen[vdef.ID] = true

		v, err := c.compileVariant(t, def, vdef, next, preAsserts, asserts)
		if err != nil {
			return fmt.Errorf("variant %s: %w", vdef.ID, err)
		}
		next = v.discriminant + 1
		t.variants = append(t.variants, v)
	}

	t.strategy = selectStrategy(def, t.variants, hasRepr)
	if hasRepr && t.strategy != strategyDiscriminant {
		return fmt.Errorf("repr requires every variant to be a unit variant")
	}
	if t.strategy != strategyBacktrack && def.Magic != nil {
		return fmt.Errorf("type-level magic is not supported on unit enums dispatched by %s", t.strategy)
	}
	return nil
}

func (c *compiler) compileMapped(t *typePlan, def *TypeDef, preAsserts, asserts []assertion) error {
	if def.ReadAs == "" {
		return fmt.Errorf("map and try-map on a type require read-as")
	}
	if len(def.Seq) > 0 || len(def.Variants) > 0 || def.Repr != "" {
		return fmt.Errorf("read-as cannot be combined with seq, variants or repr")
	}
	if (def.Map == "") == (def.TryMap == "") {
		return fmt.Errorf("read-as requires exactly one of map or try-map")
	}

	ref, err := ParseTypeRef(def.ReadAs)
	if err != nil {
		return fmt.Errorf("read-as: %w", err)
	}
	if err := c.checkRef(ref); err != nil {
		return fmt.Errorf("read-as: %w", err)
	}
	if ref.Name == t.name {
		return fmt.Errorf("read-as: %s cannot be read as itself", t.name)
	}

	m := &mappedPlan{
		from: ref,
		body: &bodyPlan{
			name:       t.name,
			magic:      def.Magic,
			params:     def.Params,
			preAsserts: preAsserts,
			asserts:    asserts,
		},
	}
	if def.Map != "" {
		if m.mapExpr, err = c.expr(def.Map); err != nil {
			return err
		}
	} else {
		if m.tryMap, err = c.registry.bindTryMap(def.TryMap); err != nil {
			return err
		}
		m.tryMapSpec = def.TryMap
	}
	t.mapped = m
	return nil
}

func (c *compiler) compileVariant(t *typePlan, def *TypeDef, vdef VariantDef, next int64, typePre, typeAsserts []assertion) (*variantPlan, error) {
	v := &variantPlan{
		name:         vdef.ID,
		discriminant: next,
		magic:        vdef.Magic,
		unit:         len(vdef.Seq) == 0,
	}
	if vdef.Value != nil {
		v.discriminant = *vdef.Value
	}

	var endian *Endian
	if vdef.Endian != "" {
		e, err := ParseEndian(vdef.Endian)
		if err != nil {
			return nil, err
		}
		endian = &e
	}

	preAsserts, err := c.assertions(vdef.PreAssert)
	if err != nil {
		return nil, fmt.Errorf("pre-assert: %w", err)
	}
	asserts, err := c.assertions(vdef.Assert)
	if err != nil {
		return nil, fmt.Errorf("assert: %w", err)
	}
	fields, err := c.compileFields(vdef.Seq)
	if err != nil {
		return nil, err
	}

	magic := def.Magic
	if vdef.Magic != nil {
		magic = vdef.Magic
	}

	v.body = &bodyPlan{
		name:       t.name + "::" + vdef.ID,
		endian:     endian,
		magic:      magic,
		params:     def.Params,
		preAsserts: append(slices.Clone(typePre), preAsserts...),
		asserts:    append(slices.Clone(typeAsserts), asserts...),
		fields:     fields,
	}
	return v, nil
}

// selectStrategy picks how an enum finds its variant. Unit enums with a
// repr compare discriminants; unit enums whose variants all carry a magic
// of one type, with no assertions or endian overrides, compare magics;
// everything else tries each variant in order.
func selectStrategy(def *TypeDef, variants []*variantPlan, hasRepr bool) variantStrategy {
	allUnit := true
	for _, v := range variants {
		if !v.unit {
			allUnit = false
		}
	}
	if !allUnit {
		return strategyBacktrack
	}
	if hasRepr {
		return strategyDiscriminant
	}
	if len(def.PreAssert) > 0 || len(def.Assert) > 0 {
		return strategyBacktrack
	}

	first := variants[0].magic
	if first == nil {
		return strategyBacktrack
	}
	for i, vdef := range def.Variants {
		m := variants[i].magic
		if m == nil || !m.sameType(first) {
			return strategyBacktrack
		}
		if len(vdef.PreAssert) > 0 || len(vdef.Assert) > 0 || vdef.Endian != "" {
			return strategyBacktrack
		}
	}
	return strategyMagic
}

func (c *compiler) compileFields(defs []FieldDef) ([]*fieldPlan, error) {
	fields := make([]*fieldPlan, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		f, err := c.compileField(def)
		if err != nil {
			if def.ID != "" {
				return nil, fmt.Errorf("field %s: %w", def.ID, err)
			}
			return nil, err
		}
		if seen[f.name] {
			return nil, fmt.Errorf("duplicate field %q", f.name)
		}
		seen[f.name] = true
		fields = append(fields, f)
	}
	return fields, nil
}

func (c *compiler) compileField(def FieldDef) (*fieldPlan, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("field without id")
	}
	f := &fieldPlan{
		name:            def.ID,
		restorePosition: def.RestorePosition,
		derefNow:        def.DerefNow || def.PostprocessNow,
		temp:            def.Temp,
		try:             def.Try,
	}

	if def.Type != "" {
		ref, err := ParseTypeRef(def.Type)
		if err != nil {
			return nil, err
		}
		if err := c.checkRef(ref); err != nil {
			return nil, err
		}
		f.typ, f.hasType = ref, true
	}

	if err := c.compileAction(f, def); err != nil {
		return nil, err
	}
	if f.try && !f.reads() {
		return nil, fmt.Errorf("try requires a read, not %s", f.action.actionName())
	}
	if err := c.compileMapping(f, def); err != nil {
		return nil, err
	}
	if err := c.compileEndian(f, def); err != nil {
		return nil, err
	}

	exprs := []struct {
		src Expr
		dst *Expression
	}{
		{def.Count, &f.count},
		{def.Offset, &f.offset},
		{def.OffsetAfter, &f.offsetAfter},
		{def.If, &f.cond},
		{def.PadBefore, &f.padBefore},
		{def.PadAfter, &f.padAfter},
		{def.AlignBefore, &f.alignBefore},
		{def.AlignAfter, &f.alignAfter},
		{def.PadSizeTo, &f.padSizeTo},
		{def.SeekBefore, &f.seekBefore},
	}
	for _, e := range exprs {
		x, err := c.expr(e.src)
		if err != nil {
			return nil, err
		}
		*e.dst = x
	}

	for _, a := range def.Args {
		x, err := c.expr(a)
		if err != nil {
			return nil, err
		}
		if x == nil {
			return nil, fmt.Errorf("empty argument expression")
		}
		f.args = append(f.args, x)
	}

	asserts, err := c.assertions(def.Assert)
	if err != nil {
		return nil, fmt.Errorf("assert: %w", err)
	}
	f.asserts = asserts

	if f.count != nil && !f.takesCount() {
		return nil, fmt.Errorf("count requires a bytes, str, vec or punctuated type")
	}
	if f.derefNow && !f.linkable() {
		return nil, fmt.Errorf("deref-now requires a plain read without map or try-map, not %s", f.action.actionName())
	}
	if f.offsetAfter != nil && !f.deferred() {
		return nil, fmt.Errorf("offset-after requires a deferred read")
	}
	return f, nil
}

func (c *compiler) compileAction(f *fieldPlan, def FieldDef) error {
	var set []string
	if def.Ignore {
		set = append(set, "ignore")
	}
	if def.Default {
		set = append(set, "default")
	}
	if def.Calc != "" {
		set = append(set, "calc")
	}
	if def.ParseWith != "" {
		set = append(set, "parse-with")
	}
	if len(set) > 1 {
		return fmt.Errorf("%s are mutually exclusive", strings.Join(set, " and "))
	}

	switch {
	case def.Ignore:
		f.action = ignoreAction{}
	case def.Default:
		f.action = defaultAction{}
	case def.Calc != "":
		x, err := c.expr(def.Calc)
		if err != nil {
			return err
		}
		f.action = calcAction{expr: x}
	case def.ParseWith != "":
		fn, ok := c.registry.Parser(def.ParseWith)
		if !ok {
			return fmt.Errorf("unknown parse function %q", def.ParseWith)
		}
		if !f.hasType {
			return fmt.Errorf("parse-with requires a type")
		}
		f.action = customAction{name: def.ParseWith, fn: fn}
	default:
		if !f.hasType {
			return fmt.Errorf("type is required")
		}
		if f.typ.Name == "punctuated" {
			return fmt.Errorf("%s must be read with parse-with: separated or separated_trailing", f.typ)
		}
		f.action = normalAction{}
	}
	return nil
}

func (c *compiler) compileMapping(f *fieldPlan, def FieldDef) error {
	if def.Map != "" && def.TryMap != "" {
		return fmt.Errorf("map and try-map are mutually exclusive")
	}
	if def.Map != "" {
		x, err := c.expr(def.Map)
		if err != nil {
			return err
		}
		f.mapExpr = x
	}
	if def.TryMap != "" {
		fn, err := c.registry.bindTryMap(def.TryMap)
		if err != nil {
			return err
		}
		f.tryMap, f.tryMapSpec = fn, def.TryMap
	}
	return nil
}

func (c *compiler) compileEndian(f *fieldPlan, def FieldDef) error {
	n := 0
	for _, set := range []bool{def.Endian != "", def.IsBig != "", def.IsLittle != ""} {
		if set {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("endian, is-big and is-little are mutually exclusive")
	}

	switch {
	case def.Endian != "":
		e, err := ParseEndian(def.Endian)
		if err != nil {
			return err
		}
		f.endian = endianSpec{set: true, fixed: e}
	case def.IsBig != "":
		x, err := c.expr(def.IsBig)
		if err != nil {
			return err
		}
		f.endian = endianSpec{set: true, cond: x, whenTrue: Big, whenFalse: Little}
	case def.IsLittle != "":
		x, err := c.expr(def.IsLittle)
		if err != nil {
			return err
		}
		f.endian = endianSpec{set: true, cond: x, whenTrue: Little, whenFalse: Big}
	}
	return nil
}

// takesCount reports whether the field's read consumes a count.
func (f *fieldPlan) takesCount() bool {
	if _, ok := f.action.(customAction); ok {
		return true
	}
	return f.hasType && countedType(f.typ)
}

func countedType(ref TypeRef) bool {
	switch ref.Name {
	case "bytes", "str", "vec", "punctuated":
		return true
	}
	if _, ok := pointerWidths[ref.Name]; ok && len(ref.Params) == 1 {
		return countedType(ref.Params[0])
	}
	return false
}

// checkRef validates a type reference against the builtins and the
// schema's types.
func (c *compiler) checkRef(ref TypeRef) error {
	if spec, ok := builtinTypes[ref.Name]; ok {
		if len(ref.Params) < spec.minParams || len(ref.Params) > spec.maxParams {
			return fmt.Errorf("%s takes %s", ref.Name, spec.arity())
		}
		if ref.Name == "str" || ref.Name == "strz" {
			if len(ref.Params) == 1 {
				if _, err := lookupEncoding(ref.Params[0].Name); err != nil {
					return err
				}
			}
			return nil
		}
		for _, p := range ref.Params {
			if err := c.checkRef(p); err != nil {
				return err
			}
		}
		return nil
	}
	if _, ok := c.types[ref.Name]; !ok {
		return fmt.Errorf("unknown type %q", ref.Name)
	}
	if len(ref.Params) > 0 {
		return fmt.Errorf("type %s takes arguments through args, not type parameters", ref.Name)
	}
	return nil
}
