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

// Package analysis implements the four drivers that ride on package evm's
// labelled symbolic interpreter: selector harvesting, argument type
// inference, state-mutability classification, and control-flow recovery.
package analysis

import "fmt"

// Calldata marks a value that originated directly from the calldata region.
type Calldata struct{}

func (Calldata) isLabel() {}

// Signature marks a value narrowed to the low 4 bytes of calldata: a
// function-selector candidate.
type Signature struct{}

func (Signature) isLabel() {}

// MulSig marks an intermediate value of a `selector * k` or `selector >> k`
// computation, as used by sparse-table dispatchers.
type MulSig struct{}

func (MulSig) isLabel() {}

// argPath identifies a position inside a nested tuple/array/dynamic
// containment: each element is the slot index taken at that nesting level.
type argPath []int

func (p argPath) equal(o argPath) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

func (p argPath) String() string {
	return fmt.Sprintf("%v", []int(p))
}

// Arg marks a value derived from calldata at logical argument offset Offset
// (relative to the end of the selector), along a Path of nested argument
// positions, plus a running additive constant and an optional bit-mask that
// has already been applied.
type Arg struct {
	Offset  uint64
	Path    argPath
	AddVal  uint64
	AndMask *[32]byte // nil means "no mask applied yet"
}

func (Arg) isLabel() {}

// IsZeroResult marks the result of one ISZERO applied to an Arg; a second
// ISZERO turns it into a bool hint (see handleIsZero in arguments.go).
type IsZeroResult struct {
	Offset  uint64
	Path    argPath
	AddVal  uint64
	AndMask *[32]byte
}

func (IsZeroResult) isLabel() {}
