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

import "fmt"

// ErrStackUnderflow means an operation needed more items than the stack held.
type ErrStackUnderflow struct {
	StackLen int
	Required int
}

func (e *ErrStackUnderflow) Error() string {
	return fmt.Sprintf("stack underflow: have %d, want %d", e.StackLen, e.Required)
}

// ErrStackOverflow means an operation would push the stack past its bound.
type ErrStackOverflow struct {
	StackLen int
	Limit    int
}

func (e *ErrStackOverflow) Error() string {
	return fmt.Sprintf("stack overflow: have %d, limit %d", e.StackLen, e.Limit)
}

// ErrInvalidDupSwap means dup(n) or swap(n) named a slot outside the stack.
type ErrInvalidDupSwap struct {
	N        int
	StackLen int
}

func (e *ErrInvalidDupSwap) Error() string {
	return fmt.Sprintf("invalid dup/swap position %d for stack of length %d", e.N, e.StackLen)
}

// ErrUnsupportedOp means step() hit an opcode this interpreter does not model.
// Drivers treat this as a clean termination signal, not a hard failure.
type ErrUnsupportedOp struct {
	Op OpCode
	PC uint64
}

func (e *ErrUnsupportedOp) Error() string {
	return fmt.Sprintf("unsupported opcode %s at pc=%d", e.Op, e.PC)
}

// ErrInvalidJumpDest means JUMP/JUMPI targeted a byte that isn't a JUMPDEST.
type ErrInvalidJumpDest struct {
	Dest uint64
}

func (e *ErrInvalidJumpDest) Error() string {
	return fmt.Sprintf("invalid jump destination %d", e.Dest)
}

// ErrGasExhausted is what Step returns when called on a VM that has already
// stopped; drivers track their gas budget themselves and stop stepping
// before that. Like ErrUnsupportedOp, it is a clean termination signal.
var ErrGasExhausted = fmt.Errorf("gas budget exhausted")
