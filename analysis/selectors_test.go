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
	"testing"

	"github.com/cdump/evmole/evm"
)

// buildDispatcher assembles:
//
//	PUSH1 0x00 CALLDATALOAD PUSH1 0xe0 SHR
//	DUP1 PUSH4 <sel> EQ PUSH1 <dest> JUMPI
//	... (one block per selector) ...
//	JUMPDEST PUSH1 0x01 PUSH1 0x00 RETURN  (one per selector, at <dest>)
func buildDispatcher(t *testing.T, selectors ...[4]byte) []byte {
	t.Helper()
	var code []byte
	emit := func(b ...byte) { code = append(code, b...) }

	emit(byte(evm.PUSH1), 0x00, byte(evm.CALLDATALOAD))
	emit(byte(evm.PUSH1), 0xe0, byte(evm.SHR))

	type fixup struct {
		pos int
		dst int
	}
	var fixups []fixup
	for _, sel := range selectors {
		emit(byte(evm.DUP1))
		emit(byte(evm.OpCode(evm.PUSH1+3)), sel[0], sel[1], sel[2], sel[3])
		emit(byte(evm.EQ))
		emit(byte(evm.PUSH1), 0x00) // placeholder destination
		fixups = append(fixups, fixup{pos: len(code) - 1, dst: -1})
		emit(byte(evm.JUMPI))
	}
	emit(byte(evm.STOP))

	for i := range fixups {
		fixups[i].dst = len(code)
		emit(byte(evm.JUMPDEST))
		emit(byte(evm.PUSH1), 0x01, byte(evm.PUSH1), 0x00, byte(evm.RETURN))
	}
	for _, f := range fixups {
		code[f.pos] = byte(f.dst)
	}
	return code
}

func TestSelectorsFindsEveryDispatcherEntry(t *testing.T) {
	sels := [][4]byte{{0x01, 0x02, 0x03, 0x04}, {0xaa, 0xbb, 0xcc, 0xdd}, {0x00, 0x00, 0x00, 0x01}}
	code := buildDispatcher(t, sels...)

	got := selectorSet(Selectors(code, SelectorsDefaultGasLimit))
	for _, sel := range sels {
		want := formatSelector(sel)
		if !got.Contains(want) {
			t.Errorf("Selectors() missing %s; got %v", want, got)
		}
	}
}

func TestSelectorsEmptyCodeYieldsNone(t *testing.T) {
	got := Selectors([]byte{byte(evm.STOP)}, SelectorsDefaultGasLimit)
	if len(got) != 0 {
		t.Errorf("Selectors(empty) = %v, want none", got)
	}
}

func TestSelectorsDedupesRepeatedMatches(t *testing.T) {
	sel := [4]byte{0x12, 0x34, 0x56, 0x78}
	code := buildDispatcher(t, sel, sel)
	got := Selectors(code, SelectorsDefaultGasLimit)
	count := 0
	want := formatSelector(sel)
	for _, s := range got {
		if s == want {
			count++
		}
	}
	if count == 0 {
		t.Fatalf("Selectors() never found %s in %v", want, got)
	}
	if count != 1 {
		t.Errorf("Selectors() reported %s %d times, want once: %v", want, count, got)
	}
}

func TestRetagIfNarrowedToSelectorRequiresExactMatch(t *testing.T) {
	vm := evm.NewVM(nil, seedCalldata())
	if err := vm.Stack.Push(evm.Element{Label: Calldata{}}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	retagIfNarrowedToSelector(vm)
	top, _ := vm.Stack.Peek()
	if _, ok := top.Label.(Signature); ok {
		t.Errorf("non-matching top got retagged to Signature")
	}
}

func TestBucketConstantRequiresOneEligibleOneBareOperand(t *testing.T) {
	sig := evm.Element{Label: Signature{}}
	bare := evm.FromUint64(7)
	if _, ok := bucketConstant(sig, bare, false); !ok {
		t.Errorf("bucketConstant(sig, bare) should be eligible")
	}
	if _, ok := bucketConstant(bare, bare, false); ok {
		t.Errorf("bucketConstant(bare, bare) should not be eligible")
	}
	mul := evm.Element{Label: MulSig{}}
	if _, ok := bucketConstant(mul, bare, false); ok {
		t.Errorf("MulSig should not be eligible when allowMulSig is false")
	}
	if _, ok := bucketConstant(mul, bare, true); !ok {
		t.Errorf("MulSig should be eligible when allowMulSig is true")
	}
}
