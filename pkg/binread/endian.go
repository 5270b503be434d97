package binread

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Endian is the byte order used for multi-byte reads. The zero value is
// Native.
type Endian int

const (
	Native Endian = iota
	Big
	Little
)

var hostEndian = func() Endian {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return Little
	}
	return Big
}()

// Resolve maps Native onto the host byte order.
func (e Endian) Resolve() Endian {
	if e == Native {
		return hostEndian
	}
	return e
}

func (e Endian) String() string {
	switch e {
	case Big:
		return "Big"
	case Little:
		return "Little"
	default:
		return "Native"
	}
}

// ParseEndian accepts the schema spellings be, big, le, little and native.
// An empty string is Native.
func ParseEndian(s string) (Endian, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native", "ne":
		return Native, nil
	case "be", "big":
		return Big, nil
	case "le", "little":
		return Little, nil
	}
	return Native, fmt.Errorf("unknown endian %q", s)
}
