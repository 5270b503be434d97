package binread

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignPadding(t *testing.T) {
	tests := []struct {
		pos      int64
		align    uint64
		expected int64
	}{
		{5, 8, 3},
		{8, 8, 0},
		{0, 4, 0},
		{1, 4, 3},
		{7, 0, 0},
		{7, 1, 0},
		{9, 16, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, alignPadding(tt.pos, tt.align), "align %d at %d", tt.align, tt.pos)
	}
}

func TestSizePadding(t *testing.T) {
	assert.Equal(t, int64(6), sizePadding(4, 10))
	assert.Equal(t, int64(0), sizePadding(10, 10))
	assert.Equal(t, int64(0), sizePadding(12, 10))
	assert.Equal(t, int64(10), sizePadding(0, 10))
}

func TestDirectives_Padding(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: padded
seq:
  - id: a
    type: u8
    pad-before: 1
    pad-after: 2
  - id: b
    type: u8
    align-before: 8
  - id: c
    type: u8
    align-after: 4
  - id: d
    type: u8
`)

	data := []byte{
		0xee,                   // pad-before
		0x01,                   // a
		0xee, 0xee,             // pad-after
		0xee, 0xee, 0xee, 0xee, // align-before 8 from 4
		0x02,                   // b at 8
		0x03,                   // c at 9
		0xee, 0xee,             // align-after 4 from 10
		0x04,                   // d at 12
	}

	result, err := reader.ReadBytes(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, uint8(1), fieldOf(t, result, "a"))
	assert.Equal(t, uint8(2), fieldOf(t, result, "b"))
	assert.Equal(t, uint8(3), fieldOf(t, result, "c"))
	assert.Equal(t, uint8(4), fieldOf(t, result, "d"))
}

func TestDirectives_PadSizeTo(t *testing.T) {
	reader := newTestReader(t, `
types:
  rec:
    endian: be
    seq:
      - id: name
        type: strz
        pad-size-to: 8
      - id: over
        type: u32
        pad-size-to: 2
      - id: tail
        type: u8
`)

	data := []byte{
		'a', 'b', 'c', 0x00, 0xee, 0xee, 0xee, 0xee, // name padded to 8
		0x00, 0x00, 0x00, 0x07, // over: already past 2 bytes
		0x09, // tail
	}

	src := NewBytesSource(data)
	result, err := reader.ReadValue(context.Background(), src, "rec", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "abc", fieldOf(t, result, "name"))
	assert.Equal(t, uint32(7), fieldOf(t, result, "over"))
	assert.Equal(t, uint8(9), fieldOf(t, result, "tail"))

	pos, err := src.Pos()
	require.NoError(t, err)
	assert.Equal(t, int64(13), pos)
}

func TestDirectives_SeekBeforeAndRestorePosition(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: header
seq:
  - id: peek
    type: u8
    seek-before: 3
    restore-position: true
  - id: first
    type: u8
`)

	result, err := reader.ReadBytes(context.Background(), []byte{0x11, 0x22, 0x33, 0x44})
	require.NoError(t, err)

	assert.Equal(t, uint8(0x44), fieldOf(t, result, "peek"))
	assert.Equal(t, uint8(0x11), fieldOf(t, result, "first"))
}

func TestDirectives_RestorePositionOnFailure(t *testing.T) {
	reader := newTestReader(t, `
types:
  peeked:
    seq:
      - id: v
        type: u16
        restore-position: true
        assert: [v == 0]
`)

	src := NewBytesSource([]byte{0x01, 0x02, 0x03})
	_, err := reader.ReadValue(context.Background(), src, "peeked", DefaultOptions())
	requireKind(t, err, KindAssertion)

	pos, err := src.Pos()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
}

func TestDirectives_ActionsAndConditions(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
  endian: le
seq:
  - id: kind
    type: u8
  - id: extra
    type: u16
    if: kind == 2
  - id: fallback
    type: u32
    default: true
  - id: skipped
    type: u16
    ignore: true
  - id: sum
    calc: kind + fallback + 1
  - id: next
    type: u8
`)

	result, err := reader.ReadBytes(context.Background(), []byte{0x01, 0x07})
	require.NoError(t, err)

	assert.Equal(t, uint8(1), fieldOf(t, result, "kind"))
	assert.Nil(t, fieldOf(t, result, "extra"))
	assert.Equal(t, uint32(0), fieldOf(t, result, "fallback"))
	assert.Equal(t, uint16(0), fieldOf(t, result, "skipped"))
	assert.Equal(t, int64(2), fieldOf(t, result, "sum"))
	assert.Equal(t, uint8(7), fieldOf(t, result, "next"))
}

func TestDirectives_IgnoredFieldIsNotVisible(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
seq:
  - id: hidden
    type: u8
    ignore: true
  - id: check
    calc: hidden
`)

	_, err := reader.ReadBytes(context.Background(), nil)
	berr := requireKind(t, err, KindExpression)
	assert.Equal(t, "hidden", berr.Expr)
}

func TestDirectives_ConditionalEndian(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
seq:
  - id: big
    type: u8
  - id: v
    type: u16
    is-big: big == 1
  - id: w
    type: u16
    is-little: big == 1
`)

	result, err := reader.ReadBytes(context.Background(), []byte{0x01, 0x12, 0x34, 0x12, 0x34})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), fieldOf(t, result, "v"))
	assert.Equal(t, uint16(0x3412), fieldOf(t, result, "w"))

	result, err = reader.ReadBytes(context.Background(), []byte{0x00, 0x12, 0x34, 0x12, 0x34})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x3412), fieldOf(t, result, "v"))
	assert.Equal(t, uint16(0x1234), fieldOf(t, result, "w"))
}

func TestDirectives_Map(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
seq:
  - id: raw
    type: u8
    map: self * 10 + 1
  - id: label
    type: u8
    map: 'self == 1 ? "one" : "other"'
`)

	result, err := reader.ReadBytes(context.Background(), []byte{0x04, 0x01})
	require.NoError(t, err)
	assert.Equal(t, int64(41), fieldOf(t, result, "raw"))
	assert.Equal(t, "one", fieldOf(t, result, "label"))
}

func TestDirectives_TryMap(t *testing.T) {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err := zw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	reader := newTestReader(t, `
meta:
  id: rec
seq:
  - id: key
    type: bytes
    count: 2
    try-map: xor(0xff)
  - id: zlen
    type: u8
  - id: packed
    type: bytes
    count: zlen
    try-map: zlib
  - id: id
    type: u8
    try-map: nonzero
`)

	data := []byte{0x00, 0xf0, byte(compressed.Len())}
	data = append(data, compressed.Bytes()...)
	data = append(data, 0x05)

	result, err := reader.ReadBytes(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x0f}, fieldOf(t, result, "key"))
	assert.Equal(t, []byte("hello"), fieldOf(t, result, "packed"))
	assert.Equal(t, uint8(5), fieldOf(t, result, "id"))
}

func TestDirectives_TryMapFailure(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
seq:
  - id: pad
    type: u8
  - id: id
    type: u16
    try-map: nonzero
`)

	_, err := reader.ReadBytes(context.Background(), []byte{0x01, 0x00, 0x00})
	berr := requireKind(t, err, KindCustom)
	assert.Equal(t, int64(3), berr.Pos)
	assert.Contains(t, berr.Error(), "try-map nonzero: value must be non-zero")
}

func TestDirectives_Assertions(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: header
seq:
  - id: version
    type: u8
    assert:
      - expr: version < 3
        message: unsupported version
  - id: length
    type: u8
assert:
  - length >= version
`)

	_, err := reader.ReadBytes(context.Background(), []byte{0x02, 0x05})
	require.NoError(t, err)

	_, err = reader.ReadBytes(context.Background(), []byte{0x07, 0x05})
	berr := requireKind(t, err, KindAssertion)
	assert.Equal(t, int64(1), berr.Pos)
	assert.Equal(t, "version < 3", berr.Expr)
	assert.Equal(t, "unsupported version", berr.Message)
	assert.Equal(t, "assertion failed at 0x1: version < 3: unsupported version", berr.Error())
	assert.True(t, errors.Is(err, ErrAssertion))

	_, err = reader.ReadBytes(context.Background(), []byte{0x02, 0x01})
	berr = requireKind(t, err, KindAssertion)
	assert.Equal(t, int64(2), berr.Pos)
	assert.Equal(t, "length >= version", berr.Expr)
	assert.Empty(t, berr.Message)
}

func TestDirectives_PreAssertWithParams(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: outer
seq:
  - id: limit
    type: u8
  - id: inner
    type: bounded
    args: [limit]
types:
  bounded:
    params: [max]
    pre-assert:
      - expr: max <= 4
        message: limit too large
    seq:
      - id: n
        type: u8
`)

	_, err := reader.ReadBytes(context.Background(), []byte{0x03, 0x01})
	require.NoError(t, err)

	_, err = reader.ReadBytes(context.Background(), []byte{0x09, 0x01})
	berr := requireKind(t, err, KindAssertion)
	assert.Equal(t, int64(1), berr.Pos)
	assert.Equal(t, "limit too large", berr.Message)
}

func TestDirectives_BadMagic(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: file
  endian: be
magic: 0xcafeu16
seq:
  - id: v
    type: u8
`)

	result, err := reader.ReadBytes(context.Background(), []byte{0xca, 0xfe, 0x01})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), fieldOf(t, result, "v"))

	_, err = reader.ReadBytes(context.Background(), []byte{0xfe, 0xca, 0x01})
	berr := requireKind(t, err, KindBadMagic)
	assert.Equal(t, int64(0), berr.Pos)
	assert.Equal(t, uint16(0xfeca), berr.Found)
	assert.Equal(t, "bad magic at 0x0: found 0xfeca", berr.Error())
}

func TestDirectives_CustomParser(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterParser("length_prefixed", func(ctx context.Context, call ParseCall) (any, error) {
		n, err := call.ReadItem(ctx, TypeRef{Name: "u8"}, call.Options, nil)
		if err != nil {
			return nil, err
		}
		return call.ReadItem(ctx, call.Type, call.Options.WithCount(uint64(n.(uint8))), nil)
	})
	registry.RegisterParser("broken", func(ctx context.Context, call ParseCall) (any, error) {
		return nil, errors.New("not today")
	})

	reader := newTestReader(t, `
meta:
  id: rec
seq:
  - id: name
    type: str
    parse-with: length_prefixed
  - id: tail
    type: u8
`, WithRegistry(registry))

	result, err := reader.ReadBytes(context.Background(), []byte{0x02, 'h', 'i', 0x09})
	require.NoError(t, err)
	assert.Equal(t, "hi", fieldOf(t, result, "name"))
	assert.Equal(t, uint8(9), fieldOf(t, result, "tail"))

	failing := newTestReader(t, `
meta:
  id: rec
seq:
  - id: skip
    type: u8
  - id: other
    type: u8
    parse-with: broken
`, WithRegistry(registry))

	_, err = failing.ReadBytes(context.Background(), []byte{0x00, 0x01})
	berr := requireKind(t, err, KindCustom)
	assert.Equal(t, int64(1), berr.Pos)
	assert.Contains(t, berr.Error(), "not today")
}

func TestDirectives_UnknownParser(t *testing.T) {
	schema, err := LoadSchema([]byte(`
meta:
  id: rec
seq:
  - id: name
    type: u8
    parse-with: missing
`))
	require.NoError(t, err)

	_, err = NewReader(schema, WithLogger(discardLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown parse function "missing"`)
}

func TestPointers_LinkedAfterStruct(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: table
seq:
  - id: name
    type: ptr8<strz>
    assert: [name == 3]
  - id: after
    type: u8
assert:
  - name == "abc"
`)

	src := NewBytesSource([]byte{0x03, 0x42, 0xee, 'a', 'b', 'c', 0x00})
	result, err := reader.Read(context.Background(), src)
	require.NoError(t, err)

	ptr, ok := fieldOf(t, result, "name").(*FilePtr)
	require.True(t, ok)
	assert.Equal(t, uint64(3), ptr.Ptr)
	assert.Equal(t, "abc", ptr.Value)
	assert.Equal(t, uint8(0x42), fieldOf(t, result, "after"))

	pos, err := src.Pos()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	assert.Equal(t, map[string]any{"name": "abc", "after": uint8(0x42)}, ToNative(result))
}

func TestPointers_DerefNowAndOffsets(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: table
  endian: be
seq:
  - id: base
    type: u8
  - id: first
    type: ptr8<u16>
    offset: base
    deref-now: true
  - id: peek
    calc: first + 1
  - id: later
    type: ptr8<u8>
    offset-after: base + 1
  - id: many
    type: vec<ptr8<u8>>
    count: 2
`)

	data := []byte{
		0x04,       // base
		0x01,       // first -> base+1 = 5
		0x00,       // later -> base+1+0 = 5
		0x02, 0x03, // many -> 2, 3
		0x0a, 0x0b, // target of first
	}

	result, err := reader.ReadBytes(context.Background(), data)
	require.NoError(t, err)

	first := fieldOf(t, result, "first").(*FilePtr)
	assert.Equal(t, uint16(0x0a0b), first.Value)
	assert.Equal(t, int64(0x0a0c), fieldOf(t, result, "peek"))

	later := fieldOf(t, result, "later").(*FilePtr)
	assert.Equal(t, uint8(0x0a), later.Value)

	many := fieldOf(t, result, "many").([]any)
	require.Len(t, many, 2)
	assert.Equal(t, uint8(0x00), many[0].(*FilePtr).Value)
	assert.Equal(t, uint8(0x02), many[1].(*FilePtr).Value)
}

func TestPointers_TargetOutOfRange(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: table
seq:
  - id: p
    type: ptr8<u32>
`)

	_, err := reader.ReadBytes(context.Background(), []byte{0x7f})
	requireKind(t, err, KindIo)
}

func TestDirectives_SiblingOptionsAreIndependent(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
  endian: le
seq:
  - id: a
    type: pair
    endian: be
  - id: b
    type: pair
types:
  pair:
    seq:
      - id: x
        type: u16
`)

	result, err := reader.ReadBytes(context.Background(), []byte{0x01, 0x02, 0x01, 0x02})
	require.NoError(t, err)

	a := fieldOf(t, result, "a").(*ordereddict.Dict)
	b := fieldOf(t, result, "b").(*ordereddict.Dict)
	ax, _ := a.Get("x")
	bx, _ := b.Get("x")
	assert.Equal(t, uint16(0x0102), ax)
	assert.Equal(t, uint16(0x0201), bx)
}

func TestDirectives_Try(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
seq:
  - id: header
    type: tagged
    try: true
  - id: next
    type: u8
types:
  tagged:
    magic: "OK"
    seq:
      - id: v
        type: u8
`)

	tests := []struct {
		name   string
		data   []byte
		header any
		next   uint8
	}{
		{"present", []byte{'O', 'K', 0x07, 0x09}, map[string]any{"v": uint8(7)}, 0x09},
		{"bad magic", []byte{'N', 'O', 0x05}, nil, 'N'},
		{"truncated body", []byte{'O', 'K'}, nil, 'O'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := reader.ReadBytes(context.Background(), tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.header, ToNative(fieldOf(t, result, "header")))
			assert.Equal(t, tt.next, fieldOf(t, result, "next"))
		})
	}
}

func TestDirectives_TryRestoresCursor(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
  endian: le
seq:
  - id: a
    type: u8
  - id: b
    type: u16
    try: true
    map: self + 1
`)

	src := NewBytesSource([]byte{0x01, 0x02})
	result, err := reader.Read(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), fieldOf(t, result, "a"))
	assert.Nil(t, fieldOf(t, result, "b"), "map is skipped when the read fails")

	pos, err := src.Pos()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)

	result, err = reader.ReadBytes(context.Background(), []byte{0x01, 0x00, 0x02})
	require.NoError(t, err)
	assert.Equal(t, int64(0x0201), fieldOf(t, result, "b"))
}
