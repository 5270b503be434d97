package binread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileError(t *testing.T, schemaYAML string) error {
	t.Helper()
	schema, err := LoadSchema([]byte(schemaYAML))
	require.NoError(t, err)
	_, err = NewReader(schema, WithLogger(discardLogger()))
	require.Error(t, err)
	return err
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		message string
	}{
		{
			name: "unknown type",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: nothing
`,
			message: `unknown type "nothing"`,
		},
		{
			name: "builtin arity",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: vec
    count: 1
`,
			message: "vec takes exactly 1 type parameter(s)",
		},
		{
			name: "count on scalar",
			schema: `
meta: {id: r}
seq:
  - id: n
    type: u8
  - id: a
    type: u16
    count: n
`,
			message: "field a: count requires a bytes, str, vec or punctuated type",
		},
		{
			name: "count on user type",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: inner
    count: 2
types:
  inner:
    seq:
      - id: v
        type: u8
`,
			message: "count requires a bytes, str, vec or punctuated type",
		},
		{
			name: "try on calc",
			schema: `
meta: {id: r}
seq:
  - id: a
    calc: 1
    try: true
`,
			message: "try requires a read, not calc",
		},
		{
			name: "type map without read-as",
			schema: `
types:
  t:
    map: self
    seq:
      - id: v
        type: u8
`,
			message: "map and try-map on a type require read-as",
		},
		{
			name: "read-as with seq",
			schema: `
types:
  t:
    read-as: u8
    map: self
    seq:
      - id: v
        type: u8
`,
			message: "read-as cannot be combined with seq, variants or repr",
		},
		{
			name: "read-as without conversion",
			schema: `
types:
  t:
    read-as: u8
`,
			message: "read-as requires exactly one of map or try-map",
		},
		{
			name: "read-as itself",
			schema: `
types:
  t:
    read-as: t
    map: self
`,
			message: "t cannot be read as itself",
		},
		{
			name: "read-as unknown try-map",
			schema: `
types:
  t:
    read-as: u8
    try-map: missing
`,
			message: "unknown try-map function: missing",
		},
		{
			name: "bad encoding",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: str<EBCDIC>
    count: 1
`,
			message: "unsupported encoding: EBCDIC",
		},
		{
			name: "duplicate field",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: u8
  - id: a
    type: u8
`,
			message: `duplicate field "a"`,
		},
		{
			name: "exclusive actions",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: u8
    ignore: true
    calc: "1"
`,
			message: "ignore and calc are mutually exclusive",
		},
		{
			name: "map and try-map",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: u8
    map: self
    try-map: nonzero
`,
			message: "map and try-map are mutually exclusive",
		},
		{
			name: "conflicting endian",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: u16
    endian: be
    is-big: "true"
`,
			message: "endian, is-big and is-little are mutually exclusive",
		},
		{
			name: "deref-now with map",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: ptr8<u8>
    map: self
    deref-now: true
`,
			message: "deref-now requires a plain read",
		},
		{
			name: "offset-after without deferral",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: ptr8<u8>
    deref-now: true
    offset-after: "1"
`,
			message: "offset-after requires a deferred read",
		},
		{
			name: "missing type",
			schema: `
meta: {id: r}
seq:
  - id: a
    count: 1
`,
			message: "type is required",
		},
		{
			name: "shadowed builtin",
			schema: `
types:
  u8:
    seq: []
`,
			message: `type name "u8" shadows a builtin type`,
		},
		{
			name: "seq and variants",
			schema: `
types:
  e:
    seq:
      - id: a
        type: u8
    variants:
      - id: x
`,
			message: "a type cannot have both seq and variants",
		},
		{
			name: "duplicate variant",
			schema: `
types:
  e:
    variants:
      - id: x
        magic: 1
      - id: x
        magic: 2
`,
			message: `duplicate variant "x"`,
		},
		{
			name: "repr on data enum",
			schema: `
types:
  e:
    repr: u8
    variants:
      - id: x
        seq:
          - id: a
            type: u8
`,
			message: "repr requires every variant to be a unit variant",
		},
		{
			name: "repr not an integer",
			schema: `
types:
  e:
    repr: f32
    variants:
      - id: x
`,
			message: "repr must be an integer type",
		},
		{
			name: "repr on struct",
			schema: `
types:
  s:
    repr: u8
    seq: []
`,
			message: "repr is only valid on enums",
		},
		{
			name: "type magic on dispatched unit enum",
			schema: `
types:
  e:
    magic: 0x7f
    variants:
      - id: x
        magic: 1
      - id: y
        magic: 2
`,
			message: "type-level magic is not supported",
		},
		{
			name: "unknown error mode",
			schema: `
types:
  e:
    return-errors: some
    variants:
      - id: x
        magic: 1
`,
			message: `unknown return-errors mode "some"`,
		},
		{
			name: "unknown root",
			schema: `
meta: {root: missing}
types:
  a:
    seq: []
`,
			message: `root type "missing" is not defined`,
		},
		{
			name: "inline without id",
			schema: `
seq:
  - id: a
    type: u8
`,
			message: "meta.id is required",
		},
		{
			name: "bad expression",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: u8
    if: "a +"
`,
			message: "field a",
		},
		{
			name: "unknown engine",
			schema: `
meta: {id: r, expr-engine: lua}
seq: []
`,
			message: `unknown expression engine "lua"`,
		},
		{
			name: "unknown try-map",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: bytes
    count: 1
    try-map: rot13
`,
			message: "unknown try-map function: rot13",
		},
		{
			name: "type params on user type",
			schema: `
meta: {id: r}
seq:
  - id: a
    type: inner<u8>
types:
  inner:
    seq: []
`,
			message: "takes arguments through args",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compileError(t, tt.schema)
			assert.Contains(t, err.Error(), tt.message)
			assert.Contains(t, err.Error(), "failed to compile schema")
		})
	}
}

func TestCompile_VariantBodies(t *testing.T) {
	reader := newTestReader(t, `
types:
  msg:
    endian: be
    magic: 0x01
    pre-assert: ["true"]
    assert: ["true"]
    variants:
      - id: a
        pre-assert: ["1 == 1"]
        seq:
          - id: v
            type: u8
      - id: b
        magic: 0x02
        endian: le
        seq:
          - id: v
            type: u8
`)

	msg := reader.prog.types["msg"]
	require.True(t, msg.isEnum)
	require.Len(t, msg.variants, 2)
	assert.Equal(t, strategyBacktrack, msg.strategy)

	a := msg.variants[0].body
	assert.Equal(t, "msg::a", a.name)
	assert.Nil(t, a.endian)
	assert.Equal(t, "0x1u8", a.magic.String())
	assert.Len(t, a.preAsserts, 2)
	assert.Len(t, a.asserts, 1)

	b := msg.variants[1].body
	require.NotNil(t, b.endian)
	assert.Equal(t, Little, *b.endian)
	assert.Equal(t, "0x2u8", b.magic.String())
	assert.Len(t, b.preAsserts, 1)
}

func TestCompile_RootSelection(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: file
  root: body
types:
  body:
    seq:
      - id: v
        type: u8
`)
	assert.Equal(t, "body", reader.RootType())
	assert.True(t, reader.HasType("body"))
	assert.True(t, reader.HasType("u32"))
	assert.False(t, reader.HasType("file"))
}

func TestCompile_UnitEnumWithAssertsBacktracks(t *testing.T) {
	reader := newTestReader(t, `
types:
  e:
    assert: ["true"]
    variants:
      - id: x
        magic: 1
      - id: y
        magic: 2
`)
	assert.Equal(t, strategyBacktrack, reader.prog.types["e"].strategy)
}
