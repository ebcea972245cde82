// Copyright 2018 Google LLC
// Copyright 2026 The Ringzero Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bits provides non-atomic bit operations on unsigned integers.
package bits

// Unsigned is the set of types the helpers in this package operate on.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// IsOn returns true if *all* bits set in 'bits' are set in 'mask'.
func IsOn[T Unsigned](mask, bits T) bool {
	return mask&bits == bits
}

// IsAnyOn returns true if *any* bit set in 'bits' is set in 'mask'.
func IsAnyOn[T Unsigned](mask, bits T) bool {
	return mask&bits != 0
}

// Mask returns a T with all of the given bits set.
func Mask[T Unsigned](is ...int) T {
	ret := T(0)
	for _, i := range is {
		ret |= MaskOf[T](i)
	}
	return ret
}

// MaskOf is like Mask, but sets only a single bit (more efficiently).
func MaskOf[T Unsigned](i int) T {
	return T(1) << uint(i)
}

// RangeMask returns a T with bits [lo, hi) set.
func RangeMask[T Unsigned](lo, hi int) T {
	return (T(1)<<uint(hi-lo) - 1) << uint(lo)
}

// Field extracts bits [lo, hi) of v, shifted down to bit 0.
func Field[T Unsigned](v T, lo, hi int) T {
	return (v & RangeMask[T](lo, hi)) >> uint(lo)
}

// SetField returns v with bits [lo, hi) replaced by the low bits of f. Bits
// outside the range are left untouched; excess bits of f are dropped.
func SetField[T Unsigned](v T, lo, hi int, f T) T {
	m := RangeMask[T](lo, hi)
	return v&^m | (f<<uint(lo))&m
}

// SetBit returns v with bit i set to on.
func SetBit[T Unsigned](v T, i int, on bool) T {
	if on {
		return v | MaskOf[T](i)
	}
	return v &^ MaskOf[T](i)
}
