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

// binOp evaluates a two-operand arithmetic/bitwise/comparison opcode. x is
// the operand popped first (the original top of stack), y the one popped
// second, matching EVM's stack order for e.g. SUB (x-y) and SHL (y<<x).
func binOp(op OpCode, x, y Element) [32]byte {
	xi, yi := x.Uint256(), y.Uint256()
	r := new(uint256.Int)

	switch op {
	case ADD:
		r.Add(xi, yi)
	case SUB:
		r.Sub(xi, yi)
	case MUL:
		r.Mul(xi, yi)
	case DIV:
		r.Div(xi, yi)
	case SDIV:
		r.SDiv(xi, yi)
	case MOD:
		r.Mod(xi, yi)
	case SMOD:
		r.SMod(xi, yi)
	case AND:
		r.And(xi, yi)
	case OR:
		r.Or(xi, yi)
	case XOR:
		r.Xor(xi, yi)
	case SHL:
		if xi.LtUint64(256) {
			r.Lsh(yi, uint(xi.Uint64()))
		}
	case SHR:
		if xi.LtUint64(256) {
			r.Rsh(yi, uint(xi.Uint64()))
		}
	case SAR:
		if !xi.LtUint64(256) {
			if yi.Sign() >= 0 {
				r.Clear()
			} else {
				r.SetAllOne()
			}
		} else {
			r.SRsh(yi, uint(xi.Uint64()))
		}
	case LT:
		r.SetUint64(boolU64(xi.Lt(yi)))
	case GT:
		r.SetUint64(boolU64(xi.Gt(yi)))
	case SLT:
		r.SetUint64(boolU64(xi.Slt(yi)))
	case SGT:
		r.SetUint64(boolU64(xi.Sgt(yi)))
	case EQ:
		r.SetUint64(boolU64(xi.Eq(yi)))
	case BYTE:
		// Byte extracts from its own receiver, so seed r with the value
		// (y, the second-popped operand) before indexing it by x.
		r.Set(yi)
		r.Byte(xi)
	case SIGNEXTEND:
		r.ExtendSign(yi, xi)
	}

	var out [32]byte
	r.WriteToArray32(&out)
	return out
}
