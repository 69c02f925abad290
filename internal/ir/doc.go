// Package ir provides the value, key, and descriptor types shared by every
// sidesync package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is a sealed variant: Null, String, Int, Bool, Array, Record
//   - NO float types anywhere - use Int (int64) for numbers
//   - Record preserves insertion order; canonical JSON sorts keys
//   - KeyPath is a sealed sum type: SingleKey, CompoundKey, Keyless
package ir
