// Package binread reads structured values from binary data using a
// declarative YAML schema.
//
// # Overview
//
// A schema names types. A type is either a struct, an ordered list of
// fields, or an enum, a list of alternatives. Each field carries
// directives that control how it is read:
//
//   - where: seek-before, pad-before, align-before, pad-after,
//     align-after, pad-size-to, restore-position
//   - how: type, endian (or is-big / is-little), count, offset, args,
//     parse-with
//   - whether: if, default, ignore, calc
//   - what it becomes: map, try-map, temp
//   - what must hold: assert
//
// Pointer fields (ptr8..ptr64) are linked after the enclosing struct has
// been read, unless deref-now asks for it immediately.
//
// # Schema
//
//	meta:
//	  id: packet
//	  endian: be
//	seq:
//	  - id: count
//	    type: u16
//	    temp: true
//	  - id: items
//	    type: punctuated<u16,u8>
//	    count: count
//	    parse-with: separated
//	types:
//	  shape:
//	    variants:
//	      - id: circle
//	        magic: 0x01
//	        seq:
//	          - id: r
//	            type: u32
//	      - id: square
//	        magic: 0x02
//	        seq:
//	          - id: side
//	            type: u32
//
// # Enums
//
// Unit enums with a repr compare the integer read against each variant's
// value. Unit enums whose variants share one magic type compare the magic
// read. Every other enum tries its variants in order, rewinding the
// cursor after each failure; the return-errors setting chooses whether
// the final error lists every variant's failure.
//
// # Expressions
//
// Conditions, counts, offsets, maps and assertions are CEL expressions by
// default, or expr-lang when meta.expr-engine is "expr". Expressions see
// every field read so far, the type's params and, inside map, the raw
// value as `self`.
//
// # Errors
//
// Every read failure is a *Error carrying a Kind and the stream position
// it is attributed to. Use errors.Is with the Err* sentinels or errors.As
// to inspect it.
package binread
