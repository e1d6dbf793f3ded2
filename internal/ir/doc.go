// Package ir holds the small value types shared by every tyuo layer.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal, so storage, graph and model code
// can agree on token ids, directions and time without importing each other.
//
// Key constraints:
//   - Token ids are signed 32-bit and assigned per context, never globally
//   - Timestamps crossing the storage boundary are unix seconds
package ir
