package binread

// Options carries the read context handed from a parent to a child read.
// It is a value type; each With method returns a modified copy and leaves
// the receiver untouched, so sibling fields never observe each other's
// overrides.
type Options struct {
	endian    Endian
	count     uint64
	hasCount  bool
	offset    int64
	traceName string
}

// DefaultOptions returns native byte order, no count and a zero offset.
func DefaultOptions() Options {
	return Options{}
}

// Endian is the byte order for integer and float reads.
func (o Options) Endian() Endian { return o.endian }

// Count returns the element count for sized reads and whether one is set.
func (o Options) Count() (uint64, bool) { return o.count, o.hasCount }

// Offset is the base that pointer targets are relative to.
func (o Options) Offset() int64 { return o.offset }

// TraceName is the name of the field being read, used for trace output.
func (o Options) TraceName() string { return o.traceName }

// WithEndian returns a copy with byte order e.
func (o Options) WithEndian(e Endian) Options {
	o.endian = e
	return o
}

// WithCount returns a copy with element count n.
func (o Options) WithCount(n uint64) Options {
	o.count = n
	o.hasCount = true
	return o
}

// WithoutCount returns a copy with no count set.
func (o Options) WithoutCount() Options {
	o.count = 0
	o.hasCount = false
	return o
}

// WithOffset returns a copy whose pointers resolve relative to off.
func (o Options) WithOffset(off int64) Options {
	o.offset = off
	return o
}

// WithTraceName returns a copy traced under name.
func (o Options) WithTraceName(name string) Options {
	o.traceName = name
	return o
}
