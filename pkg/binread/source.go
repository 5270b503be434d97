package binread

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// Source is a seekable byte cursor. All reads go through the underlying
// Kaitai stream; failures are reported as KindIo errors carrying the
// position the read started at.
type Source struct {
	stream *kaitai.Stream
}

// NewSource wraps a seekable reader.
func NewSource(rs io.ReadSeeker) *Source {
	return &Source{stream: kaitai.NewStream(rs)}
}

// NewSourceFromStream wraps an existing Kaitai stream.
func NewSourceFromStream(stream *kaitai.Stream) *Source {
	return &Source{stream: stream}
}

// NewBytesSource reads from an in-memory buffer.
func NewBytesSource(data []byte) *Source {
	return NewSource(bytes.NewReader(data))
}

// Stream returns the underlying Kaitai stream.
func (s *Source) Stream() *kaitai.Stream {
	return s.stream
}

// Pos returns the current cursor position.
func (s *Source) Pos() (int64, error) {
	pos, err := s.stream.Pos()
	if err != nil {
		return -1, ioError(-1, err)
	}
	return pos, nil
}

// Seek moves the cursor to an absolute position.
func (s *Source) Seek(pos int64) error {
	if pos < 0 {
		return ioError(pos, fmt.Errorf("seek to negative position %d", pos))
	}
	if _, err := s.stream.Seek(pos, io.SeekStart); err != nil {
		return ioError(pos, err)
	}
	return nil
}

// Skip advances the cursor by n bytes.
func (s *Source) Skip(n int64) error {
	if n == 0 {
		return nil
	}
	pos, err := s.Pos()
	if err != nil {
		return err
	}
	return s.Seek(pos + n)
}

// Size returns the total length of the data.
func (s *Source) Size() (int64, error) {
	size, err := s.stream.Size()
	if err != nil {
		return -1, ioError(-1, err)
	}
	return size, nil
}

// remaining fails with io.ErrUnexpectedEOF at pos unless n bytes are
// left. The runtime's fixed-width reads do not detect short reads.
func (s *Source) remaining(pos int64, n int) error {
	size, err := s.Size()
	if err != nil {
		return err
	}
	if size-pos < int64(n) {
		return ioError(pos, io.ErrUnexpectedEOF)
	}
	return nil
}

// ReadUint reads an unsigned integer of 1, 2, 4 or 8 bytes.
func (s *Source) ReadUint(width int, e Endian) (uint64, error) {
	pos, err := s.Pos()
	if err != nil {
		return 0, err
	}
	if err := s.remaining(pos, width); err != nil {
		return 0, err
	}
	big := e.Resolve() == Big

	var v uint64
	switch width {
	case 1:
		var b uint8
		b, err = s.stream.ReadU1()
		v = uint64(b)
	case 2:
		var u uint16
		if big {
			u, err = s.stream.ReadU2be()
		} else {
			u, err = s.stream.ReadU2le()
		}
		v = uint64(u)
	case 4:
		var u uint32
		if big {
			u, err = s.stream.ReadU4be()
		} else {
			u, err = s.stream.ReadU4le()
		}
		v = uint64(u)
	case 8:
		if big {
			v, err = s.stream.ReadU8be()
		} else {
			v, err = s.stream.ReadU8le()
		}
	default:
		return 0, ioError(pos, fmt.Errorf("unsupported integer width %d", width))
	}
	if err != nil {
		return 0, ioError(pos, err)
	}
	return v, nil
}

// ReadInt reads a signed integer of 1, 2, 4 or 8 bytes.
func (s *Source) ReadInt(width int, e Endian) (int64, error) {
	pos, err := s.Pos()
	if err != nil {
		return 0, err
	}
	if err := s.remaining(pos, width); err != nil {
		return 0, err
	}
	big := e.Resolve() == Big

	var v int64
	switch width {
	case 1:
		var b int8
		b, err = s.stream.ReadS1()
		v = int64(b)
	case 2:
		var i int16
		if big {
			i, err = s.stream.ReadS2be()
		} else {
			i, err = s.stream.ReadS2le()
		}
		v = int64(i)
	case 4:
		var i int32
		if big {
			i, err = s.stream.ReadS4be()
		} else {
			i, err = s.stream.ReadS4le()
		}
		v = int64(i)
	case 8:
		if big {
			v, err = s.stream.ReadS8be()
		} else {
			v, err = s.stream.ReadS8le()
		}
	default:
		return 0, ioError(pos, fmt.Errorf("unsupported integer width %d", width))
	}
	if err != nil {
		return 0, ioError(pos, err)
	}
	return v, nil
}

// ReadF32 reads an IEEE 754 single.
func (s *Source) ReadF32(e Endian) (float32, error) {
	pos, err := s.Pos()
	if err != nil {
		return 0, err
	}
	if err := s.remaining(pos, 4); err != nil {
		return 0, err
	}
	var v float32
	if e.Resolve() == Big {
		v, err = s.stream.ReadF4be()
	} else {
		v, err = s.stream.ReadF4le()
	}
	if err != nil {
		return 0, ioError(pos, err)
	}
	return v, nil
}

// ReadF64 reads an IEEE 754 double.
func (s *Source) ReadF64(e Endian) (float64, error) {
	pos, err := s.Pos()
	if err != nil {
		return 0, err
	}
	if err := s.remaining(pos, 8); err != nil {
		return 0, err
	}
	var v float64
	if e.Resolve() == Big {
		v, err = s.stream.ReadF8be()
	} else {
		v, err = s.stream.ReadF8le()
	}
	if err != nil {
		return 0, ioError(pos, err)
	}
	return v, nil
}

// ReadBytes reads exactly n bytes.
func (s *Source) ReadBytes(n uint64) ([]byte, error) {
	pos, err := s.Pos()
	if err != nil {
		return nil, err
	}
	size, err := s.Size()
	if err != nil {
		return nil, err
	}
	// Check before allocating so a corrupt count cannot exhaust memory.
	if n > math.MaxInt32 || int64(n) > size-pos {
		return nil, ioError(pos, io.ErrUnexpectedEOF)
	}
	b, err := s.stream.ReadBytes(int(n))
	if err != nil {
		return nil, ioError(pos, err)
	}
	return b, nil
}

// ReadBytesTerm reads up to and consumes term; the terminator is not
// included in the result. Reaching the end first is an error.
func (s *Source) ReadBytesTerm(term byte) ([]byte, error) {
	pos, err := s.Pos()
	if err != nil {
		return nil, err
	}
	b, err := s.stream.ReadBytesTerm(term, false, true, true)
	if err != nil {
		return nil, ioError(pos, err)
	}
	return b, nil
}

// ReadUTF16Term reads 16-bit units until a zero unit. The terminator is
// consumed and the raw bytes before it are returned.
func (s *Source) ReadUTF16Term() ([]byte, error) {
	var out []byte
	for {
		unit, err := s.ReadBytes(2)
		if err != nil {
			return nil, err
		}
		if unit[0] == 0 && unit[1] == 0 {
			return out, nil
		}
		out = append(out, unit...)
	}
}

// EOF reports whether the cursor is at the end of the data.
func (s *Source) EOF() (bool, error) {
	eof, err := s.stream.EOF()
	if err != nil {
		return false, ioError(-1, err)
	}
	return eof, nil
}
