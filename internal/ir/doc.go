// Package ir holds the types shared by every other package: MIDI events,
// units, combinator expressions, compiled patches and setups, and trace
// records.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Conventions:
//   - ports and channels are zero-based
//   - JSON tags use snake_case
//   - content hashes use canonical JSON (RFC 8785) with domain separation
package ir
