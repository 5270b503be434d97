package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNumbers(t *testing.T) {
	got := NormalizeNumbers(map[string]any{
		"a": uint8(1),
		"b": []any{int16(-2), float32(0.5)},
		"c": uint64(1 << 63),
		"d": "text",
	})

	assert.Equal(t, map[string]any{
		"a": int64(1),
		"b": []any{int64(-2), float64(0.5)},
		"c": uint64(1 << 63),
		"d": "text",
	}, got)
}

func TestDiff(t *testing.T) {
	assert.Empty(t, Diff(map[string]any{"v": 3}, map[string]any{"v": uint16(3)}))
	assert.NotEmpty(t, Diff(map[string]any{"v": 3}, map[string]any{"v": uint16(4)}))
}

func TestFilterMapKeys(t *testing.T) {
	source := map[string]any{
		"keep": 1,
		"drop": 2,
		"nested": map[string]any{
			"x": 1,
			"y": 2,
		},
	}
	reference := map[string]any{
		"keep":   nil,
		"nested": map[string]any{"x": nil},
	}

	assert.Equal(t, map[string]any{
		"keep":   1,
		"nested": map[string]any{"x": 1},
	}, FilterMapKeys(source, reference))
}
