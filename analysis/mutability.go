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

package analysis

import (
	"github.com/sirupsen/logrus"

	"github.com/cdump/evmole/evm"
)

var mutLog = logrus.WithField("component", "analysis.mutability")

// Mutability values, exactly as spec.md §6 names them.
const (
	Pure       = "pure"
	View       = "view"
	Payable    = "payable"
	NonPayable = "nonpayable"
)

// MutabilityDefaultGasLimit mirrors the arguments driver's default budget;
// both run the same "advance to function entry, then watch" shape.
const MutabilityDefaultGasLimit = 50_000

// StateMutability classifies selector's externally observable effects by
// running a fresh VM seeded with selector as calldata and watching which
// opcodes execute once inside the matched function body.
func StateMutability(code []byte, selector [4]byte, gasLimit uint64) string {
	var data [32]byte
	copy(data[:4], selector[:])
	vm := evm.NewVM(code, evm.Element{Data: data, Label: Calldata{}})

	insideFunction := false
	sawCallvalueGate := false
	sawStateWrite := false
	sawStateRead := false
	var gasUsed uint64

	for !vm.Stopped {
		res, err := vm.Step()
		if err != nil {
			mutLog.WithError(err).Debug("clean termination")
			break
		}
		gasUsed += res.Gas
		if gasUsed > gasLimit {
			break
		}

		if !insideFunction {
			if res.Op == evm.CALLVALUE {
				retagTop(vm, callvalueLabel{})
			}
			if res.Op == evm.ISZERO && len(res.Operands) == 1 {
				if _, ok := res.Operands[0].Label.(callvalueLabel); ok {
					sawCallvalueGate = true
				}
			}
			if entersFunction(res, selector) {
				insideFunction = true
			}
			continue
		}

		switch {
		case res.Op.IsLog():
			sawStateWrite = true
		case res.Op == evm.SSTORE || res.Op == evm.TSTORE || res.Op == evm.CREATE ||
			res.Op == evm.CREATE2 || res.Op == evm.SELFDESTRUCT:
			sawStateWrite = true
		case res.Op == evm.CALL:
			if len(res.Operands) >= 3 && !res.Operands[2].IsZero() {
				sawStateWrite = true
			}
		case res.Op == evm.SLOAD || res.Op == evm.TLOAD || res.Op == evm.BALANCE ||
			res.Op == evm.EXTCODESIZE || res.Op == evm.EXTCODEHASH ||
			res.Op == evm.BLOCKHASH || res.Op == evm.SELFBALANCE ||
			res.Op == evm.TIMESTAMP || res.Op == evm.NUMBER:
			sawStateRead = true
		}
	}

	switch {
	case sawStateWrite:
		return NonPayable
	case !sawCallvalueGate:
		return Payable
	case sawStateRead:
		return View
	default:
		return Pure
	}
}

// callvalueLabel tags the result of a CALLVALUE opcode so the ISZERO(CALLVALUE)
// payability gate can be recognised regardless of where CALLVALUE sits in
// the dispatcher prologue.
type callvalueLabel struct{}

func (callvalueLabel) isLabel() {}

// entersFunction reports the same "first EQ/XOR/SUB that matches the
// selector" heuristic the arguments driver uses (spec.md §4.3/§4.4): the two
// operands are equal (EQ yields 1, XOR/SUB yield 0) and end with selector.
func entersFunction(res evm.StepResult, selector [4]byte) bool {
	if len(res.Operands) != 2 {
		return false
	}
	switch res.Op {
	case evm.EQ, evm.XOR, evm.SUB:
	default:
		return false
	}
	x, y := res.Operands[0], res.Operands[1]
	return x.Data == y.Data && y.Bytes4() == selector
}
