package binread

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readingSchema = `
meta:
  id: reading
  endian: le
seq:
  - id: temp
    type: decicelsius
  - id: version
    type: version
types:
  decicelsius:
    read-as: i16
    map: double(self) / 10.0
  version:
    magic: "V"
    read-as: u8
    map: self * 2
    assert:
      - expr: self < 100
        message: version too new
`

func TestReadAs_Map(t *testing.T) {
	reader := newTestReader(t, readingSchema)

	result, err := reader.ReadBytes(context.Background(), []byte{0xe7, 0x00, 'V', 0x03})
	require.NoError(t, err)
	assert.InDelta(t, 23.1, fieldOf(t, result, "temp"), 1e-9)
	assert.EqualValues(t, 6, fieldOf(t, result, "version"))
}

func TestReadAs_MagicAndAssertions(t *testing.T) {
	reader := newTestReader(t, readingSchema)

	_, err := reader.ReadBytes(context.Background(), []byte{0xe7, 0x00, 'X', 0x03})
	berr := requireKind(t, err, KindBadMagic)
	assert.Equal(t, int64(2), berr.Pos)

	_, err = reader.ReadBytes(context.Background(), []byte{0xe7, 0x00, 'V', 0x40})
	berr = requireKind(t, err, KindAssertion)
	assert.Equal(t, "version too new", berr.Message)
}

func TestReadAs_TryMapAndArgs(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: rec
seq:
  - id: n
    type: u8
  - id: id
    type: nonzero_id
  - id: scaled
    type: scaled
    args: [n]
types:
  nonzero_id:
    read-as: u8
    try-map: nonzero
  scaled:
    params: [factor]
    read-as: u8
    map: self * factor
`)

	result, err := reader.ReadBytes(context.Background(), []byte{0x03, 0x05, 0x04})
	require.NoError(t, err)
	assert.Equal(t, uint8(5), fieldOf(t, result, "id"))
	assert.EqualValues(t, 12, fieldOf(t, result, "scaled"))

	_, err = reader.ReadBytes(context.Background(), []byte{0x03, 0x00, 0x04})
	berr := requireKind(t, err, KindCustom)
	assert.Contains(t, berr.Error(), "try-map nonzero")
}

func TestReadAs_UserType(t *testing.T) {
	tracer := &RecordingTracer{}
	reader := newTestReader(t, `
types:
  point:
    seq:
      - id: x
        type: u8
      - id: y
        type: u8
  sum:
    read-as: point
    map: self.x + self.y
`, WithTracer(tracer))

	value, err := reader.ReadValue(context.Background(), NewBytesSource([]byte{0x02, 0x05}), "sum", DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 7, value)

	events := tracer.Events()
	require.Len(t, events, 4)
	assert.Equal(t, TraceEvent{Kind: TraceStart, Text: "sum"}, events[0])
	assert.Equal(t, TraceEvent{Kind: TraceStart, Text: "point"}, events[1])
}

func TestReadAs_TopLevel(t *testing.T) {
	reader := newTestReader(t, `
meta:
  id: word
  endian: be
read-as: u16
map: self + 1
`)

	result, err := reader.ReadBytes(context.Background(), []byte{0x01, 0x00})
	require.NoError(t, err)
	assert.EqualValues(t, 257, result)
}
