// Package testutil holds comparison helpers shared by the package tests.
package testutil

import (
	"math"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ConvertToInt64 converts various numeric types to int64 for comparison.
// Returns the int64 value and a boolean indicating success.
func ConvertToInt64(i any) (int64, bool) {
	switch v := i.(type) {
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case float32:
		if v == float32(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
		return 0, false
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// NormalizeNumbers returns a copy of a decoded value with every integer
// that fits widened to int64 and every float32 widened to float64, so
// values can be compared against literals in tests.
func NormalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeNumbers(item)
		}
		return out
	case float32:
		return float64(val)
	case float64:
		return val
	}
	if n, ok := ConvertToInt64(v); ok {
		return n
	}
	return v
}

// Diff compares two decoded values after NormalizeNumbers and returns a
// go-cmp diff, empty when they match.
func Diff(want, got any) string {
	return cmp.Diff(NormalizeNumbers(want), NormalizeNumbers(got), cmpopts.EquateEmpty(), cmpopts.EquateApprox(0, 1e-9))
}

// FilterMapKeys recursively creates a new map from 'source' containing only keys present in 'reference'.
func FilterMapKeys(source map[string]any, reference map[string]any) map[string]any {
	result := make(map[string]any)
	for key, refVal := range reference {
		if srcVal, ok := source[key]; ok {
			if refSubMap, refIsMap := refVal.(map[string]any); refIsMap {
				if srcSubMap, srcIsMap := srcVal.(map[string]any); srcIsMap {
					result[key] = FilterMapKeys(srcSubMap, refSubMap)
				} else {
					result[key] = srcVal // Type mismatch, will be caught by cmp.Diff
				}
			} else {
				result[key] = srcVal
			}
		}
	}
	return result
}
