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
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"

	"github.com/cdump/evmole/evm"
)

var selLog = logrus.WithField("component", "analysis.selectors")

// maxForkDepth bounds the LT/GT and bucket-table recursion. Gas division
// already drives every recursive branch toward zero budget, but a hard cap
// guards against unexpectedly cheap branches nesting too deep (spec.md §9
// design notes).
const maxForkDepth = 64

// sentinelSelector is the calldata seeded into every selector-analysis VM:
// an arbitrary 4-byte value tagged Calldata so dispatcher comparisons can be
// recognised regardless of which literal selector they test against.
var sentinelSelector = [4]byte{0xAA, 0xBB, 0xCC, 0xDD}

func seedCalldata() evm.Element {
	var data [32]byte
	copy(data[:4], sentinelSelector[:])
	return evm.Element{Data: data, Label: Calldata{}}
}

// SelectorsDefaultGasLimit is the default budget spec.md §4.2/§9 names for
// selector harvesting.
const SelectorsDefaultGasLimit = 500_000

// Selectors runs the selector-harvesting driver over code and returns every
// 4-byte function selector the dispatcher routes on, as lowercase 8-hex
// strings, deduplicated in first-harvested order.
func Selectors(code []byte, gasLimit uint64) []string {
	vm := evm.NewVM(code, seedCalldata())
	raw, _ := harvestSelectors(vm, gasLimit, 0)
	return dedupStrings(raw)
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func harvestSelectors(vm *evm.VM, gasLimit uint64, depth int) ([]string, uint64) {
	var selectors []string
	var gasUsed uint64

	for !vm.Stopped {
		res, err := vm.Step()
		if err != nil {
			selLog.WithError(err).Debug("clean termination")
			break
		}
		gasUsed += res.Gas
		if gasUsed > gasLimit {
			break
		}

		switch res.Op {
		case evm.EQ, evm.XOR:
			x, ok := splitSignatureOperand(res.Operands)
			if !ok {
				continue
			}
			selectors = append(selectors, formatSelector(x.Bytes4()))
			replace := uint64(0)
			if res.Op == evm.XOR {
				replace = 1
			}
			_ = vm.Stack.SetBack(0, evm.FromUint64(replace))

		case evm.SUB:
			x, ok := splitSignatureOperand(res.Operands)
			if !ok {
				continue
			}
			selectors = append(selectors, formatSelector(x.Bytes4()))

		case evm.ISZERO:
			if len(res.Operands) != 1 {
				continue
			}
			if _, ok := res.Operands[0].Label.(Signature); ok {
				selectors = append(selectors, formatSelector([4]byte{}))
			}

		case evm.SHR:
			if len(res.Operands) != 2 {
				continue
			}
			y := res.Operands[1] // value being shifted, second-popped
			if isCalldataOrSignature(y.Label) {
				retagIfNarrowedToSelector(vm)
			} else if isMulSig(y.Label) {
				retagTop(vm, MulSig{})
			}

		case evm.DIV:
			if len(res.Operands) != 2 {
				continue
			}
			x := res.Operands[0] // dividend, first-popped
			if isCalldataOrSignature(x.Label) {
				retagIfNarrowedToSelector(vm)
			}

		case evm.AND:
			if len(res.Operands) != 2 {
				continue
			}
			x, y := res.Operands[0], res.Operands[1]
			if k, ok := bucketConstant(x, y, false); ok && k < 256 {
				selectors, gasUsed = forkBucket(vm, selectors, gasUsed, gasLimit, depth, k)
				continue
			}
			if isCalldataOrSignature(x.Label) || isCalldataOrSignature(y.Label) {
				retagIfNarrowedToSelector(vm)
			}
			if isCalldata(x.Label) || isCalldata(y.Label) {
				retagTop(vm, Calldata{})
			}

		case evm.MOD:
			if len(res.Operands) != 2 {
				continue
			}
			x, y := res.Operands[0], res.Operands[1]
			if k, ok := bucketConstant(x, y, true); ok && k < 256 {
				selectors, gasUsed = forkBucket(vm, selectors, gasUsed, gasLimit, depth, k)
			}

		case evm.MUL:
			if len(res.Operands) != 2 {
				continue
			}
			x, y := res.Operands[0], res.Operands[1]
			if isSignature(x.Label) || isSignature(y.Label) {
				retagTop(vm, MulSig{})
			}

		case evm.LT, evm.GT:
			if len(res.Operands) != 2 {
				continue
			}
			x, y := res.Operands[0], res.Operands[1]
			if (!isSignature(x.Label) && !isSignature(y.Label)) || depth >= maxForkDepth {
				continue
			}
			clone := vm.Clone()
			sub, subGas := harvestSelectors(clone, (gasLimit-gasUsed)/2, depth+1)
			selectors = append(selectors, sub...)
			gasUsed += subGas
			invertTopBool(vm)

		case evm.MLOAD:
			touchedCalldata := false
			for _, l := range res.TouchedLabels {
				if isCalldata(l) {
					touchedCalldata = true
					break
				}
			}
			if touchedCalldata {
				retagIfNarrowedToSelector(vm)
			}
		}
	}

	return selectors, gasUsed
}

// forkBucket explores a Vyper-style sparse/dense dispatch table: for each
// bucket index 1..k it clones the VM, overwrites the MOD/AND result with the
// bucket index, and recurses under a k-divided budget; the original VM
// continues as if the result were the fallback bucket 0.
func forkBucket(vm *evm.VM, selectors []string, gasUsed, gasLimit uint64, depth int, k uint64) ([]string, uint64) {
	if depth >= maxForkDepth || k == 0 {
		_ = vm.Stack.SetBack(0, evm.FromUint64(0))
		return selectors, gasUsed
	}
	remaining := gasLimit - gasUsed
	perBucket := remaining / k
	for m := uint64(1); m <= k; m++ {
		clone := vm.Clone()
		_ = clone.Stack.SetBack(0, evm.FromUint64(m))
		sub, subGas := harvestSelectors(clone, perBucket, depth+1)
		selectors = append(selectors, sub...)
		gasUsed += subGas
	}
	_ = vm.Stack.SetBack(0, evm.FromUint64(0))
	return selectors, gasUsed
}

// splitSignatureOperand identifies, among a two-operand EQ/XOR/SUB step,
// which operand carries the Signature label and returns the *other*
// operand (the literal selector constant the dispatcher compares against).
func splitSignatureOperand(operands []evm.Element) (x evm.Element, ok bool) {
	if len(operands) != 2 {
		return evm.Element{}, false
	}
	a, b := operands[0], operands[1]
	if isSignature(a.Label) {
		return b, true
	}
	if isSignature(b.Label) {
		return a, true
	}
	return evm.Element{}, false
}

func isCalldataOrSignature(l evm.Label) bool {
	return isCalldata(l) || isSignature(l)
}

func isCalldata(l evm.Label) bool {
	_, ok := l.(Calldata)
	return ok
}

func isSignature(l evm.Label) bool {
	_, ok := l.(Signature)
	return ok
}

func isMulSig(l evm.Label) bool {
	_, ok := l.(MulSig)
	return ok
}

// bucketConstant returns the small-literal operand k when the other operand
// carries Signature (always eligible) or, when allowMulSig, MulSig too —
// MOD-based dispatch tables key off a post-multiply MulSig value, AND-based
// ones key off the raw Signature.
func bucketConstant(x, y evm.Element, allowMulSig bool) (k uint64, ok bool) {
	eligible := func(l evm.Label) bool {
		return isSignature(l) || (allowMulSig && isMulSig(l))
	}
	if eligible(x.Label) && y.Label == nil {
		if v := y.Uint256(); v.IsUint64() {
			return v.Uint64(), true
		}
	}
	if eligible(y.Label) && x.Label == nil {
		if v := x.Uint256(); v.IsUint64() {
			return v.Uint64(), true
		}
	}
	return 0, false
}

// retagIfNarrowedToSelector tags the current top-of-stack Signature if its
// low 4 bytes equal the seeded sentinel selector and the top 28 are zero.
func retagIfNarrowedToSelector(vm *evm.VM) {
	top, err := vm.Stack.Peek()
	if err != nil {
		return
	}
	for i := 0; i < 28; i++ {
		if top.Data[i] != 0 {
			return
		}
	}
	if top.Bytes4() != sentinelSelector {
		return
	}
	retagTop(vm, Signature{})
}

func retagTop(vm *evm.VM, l evm.Label) {
	top, err := vm.Stack.Peek()
	if err != nil {
		return
	}
	_ = vm.Stack.SetBack(0, top.WithLabel(l))
}

func invertTopBool(vm *evm.VM) {
	top, err := vm.Stack.Peek()
	if err != nil {
		return
	}
	v := uint64(0)
	if top.IsZero() {
		v = 1
	}
	_ = vm.Stack.SetBack(0, evm.FromUint64(v).WithLabel(top.Label))
}

func formatSelector(b [4]byte) string {
	return fmt.Sprintf("%08x", uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8|uint32(b[3]))
}

// selectorSet builds a deckarep/golang-set of selectors, for set-membership
// checks over the ordered slice Selectors returns.
func selectorSet(selectors []string) mapset.Set {
	s := mapset.NewSet()
	for _, sel := range selectors {
		s.Add(sel)
	}
	return s
}
