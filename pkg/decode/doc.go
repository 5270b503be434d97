// Package decode provides a high-level API for decoding binary data with
// binread YAML schemas.
//
// # Overview
//
// The package hides schema loading and compilation behind a Decoder that
// keeps compiled readers in a cache. It supports:
//
//   - Decoding to plain Go values (maps, slices and scalars)
//   - Decoding to JSON with field order preserved
//   - Schema caching with an expiry
//   - Schema validation without data
//
// # Quick Start
//
//	result, err := decode.Decode(data, "format.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Decoded: %+v\n", result)
//
// # Custom Decoder
//
//	decoder := decode.NewDecoder(
//	    decode.WithCaching(time.Hour),
//	    decode.WithDebugMode(true),
//	)
//	result, err := decoder.Decode(ctx, data, "format.yaml", decode.WithRootType("header"))
//
// # Errors
//
// Read failures wrap a *binread.Error; use errors.As to get its kind and
// stream position.
package decode
