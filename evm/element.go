// Copyright 2026 The evmole Authors
// This file is part of evmole.
//
// evmole is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// evmole is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with evmole. If not, see <http://www.gnu.org/licenses/>.

package evm

import "github.com/holiman/uint256"

// Label tags the provenance of an Element. The zero value, nil, means the
// value carries no known provenance. Drivers define their own concrete
// label types and type-switch on them; the evm package only needs to copy
// labels around, never interpret them.
type Label interface {
	// isLabel is unexported so only this module's packages can implement Label.
	isLabel()
}

// Element is a 32-byte EVM word bundled with an optional provenance Label.
// Labels are never required for correctness; the interpreter computes
// correct results with or without them and only copies them across
// operations the caller's driver recognises as provenance-preserving.
type Element struct {
	Data  [32]byte
	Label Label
}

// Zero is the zero-valued, unlabelled Element.
var Zero = Element{}

// FromUint256 builds an unlabelled Element from a uint256.Int.
func FromUint256(v *uint256.Int) Element {
	var e Element
	v.WriteToArray32(&e.Data)
	return e
}

// FromUint64 is a convenience constructor used by small literal constants.
func FromUint64(v uint64) Element {
	return FromUint256(new(uint256.Int).SetUint64(v))
}

// Uint256 interprets Data as a big-endian 256-bit unsigned integer.
func (e Element) Uint256() *uint256.Int {
	return new(uint256.Int).SetBytes32(e.Data[:])
}

// Bytes4 returns the low (last) 4 bytes of Data, i.e. a candidate selector.
func (e Element) Bytes4() [4]byte {
	var b [4]byte
	copy(b[:], e.Data[28:32])
	return b
}

// IsZero reports whether every byte of Data is zero.
func (e Element) IsZero() bool {
	for _, b := range e.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// WithData returns a copy of e with Data replaced and Label preserved.
func (e Element) WithData(v *uint256.Int) Element {
	v.WriteToArray32(&e.Data)
	return e
}

// WithLabel returns a copy of e with Label replaced and Data preserved.
func (e Element) WithLabel(l Label) Element {
	e.Label = l
	return e
}
