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

package evmole

import (
	"encoding/hex"
	"fmt"

	"github.com/cdump/evmole/evm"
)

// Disassemble emits one line per instruction — `pc: MNEMONIC [operand-hex]`
// — using the same opcode mnemonic table the selector/CFG analyses use,
// per SPEC_FULL.md §4's expansion of spec.md §6's `disassemble` flag.
func Disassemble(code []byte) []string {
	var lines []string
	for pc := 0; pc < len(code); {
		op := evm.OpCode(code[pc])
		n := op.PushSize()
		if n == 0 {
			lines = append(lines, fmt.Sprintf("%d: %s", pc, op))
			pc++
			continue
		}
		end := pc + 1 + n
		if end > len(code) {
			end = len(code)
		}
		operand := code[pc+1 : end]
		lines = append(lines, fmt.Sprintf("%d: %s %s", pc, op, hex.EncodeToString(operand)))
		pc = pc + 1 + n
	}
	return lines
}
