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
	"errors"
	"reflect"
	"testing"

	"github.com/cdump/evmole/evm"
)

// realWorldFunctionSelectorHex is solc output for a minimal single-function
// contract (`function get(uint32) external pure returns (uint32)`),
// dispatching selector fae7ab82. Exercised directly against the reference
// implementation's own test fixture.
const realWorldFunctionSelectorHex = "6080604052348015600e575f80fd5b50600436106026575f3560e01c8063fae7ab8214602a575b5f80fd5b603960353660046062565b6052565b60405163ffffffff909116815260200160405180910390f35b5f605c826001608a565b92915050565b5f602082840312156071575f80fd5b813563ffffffff811681146083575f80fd5b9392505050565b63ffffffff8181168382160190811115605c57634e487b7160e01b5f52601160045260245ffd"

func TestContractInfoRealWorldSelectorsArgumentsMutability(t *testing.T) {
	selectors, err := FunctionSelectors(realWorldFunctionSelectorHex)
	if err != nil {
		t.Fatalf("FunctionSelectors() error = %v", err)
	}
	if want := []string{"fae7ab82"}; !reflect.DeepEqual(selectors, want) {
		t.Errorf("FunctionSelectors() = %v, want %v", selectors, want)
	}

	args, err := FunctionArguments(realWorldFunctionSelectorHex, "fae7ab82")
	if err != nil {
		t.Fatalf("FunctionArguments() error = %v", err)
	}
	if want := "uint32"; args != want {
		t.Errorf("FunctionArguments() = %q, want %q", args, want)
	}

	mut, err := FunctionStateMutability(realWorldFunctionSelectorHex, "fae7ab82")
	if err != nil {
		t.Fatalf("FunctionStateMutability() error = %v", err)
	}
	if want := Pure; mut != want {
		t.Errorf("FunctionStateMutability() = %q, want %q", mut, want)
	}
}

func TestContractInfoRealWorldViaOptions(t *testing.T) {
	c, err := ContractInfo("0x"+realWorldFunctionSelectorHex, Options{
		Selectors:       true,
		Arguments:       true,
		StateMutability: true,
	})
	if err != nil {
		t.Fatalf("ContractInfo() error = %v", err)
	}
	want := []Function{{Selector: "fae7ab82", Arguments: "uint32", StateMutability: Pure}}
	if !reflect.DeepEqual(c.Functions, want) {
		t.Errorf("ContractInfo().Functions = %+v, want %+v", c.Functions, want)
	}
}

// fallbackOnlySelectorZero is a synthetic fallback-only dispatcher: it loads
// the selector, narrows it to the low 4 bytes via SHR, and ISZERO-tests it
// directly — the ISZERO part of the "PUSH4 0 EQ JUMPI ... ISZERO" shape
// spec.md's end-to-end table names, without the PUSH4 0 EQ comparison.
// Selectors recognises it via its ISZERO-on-Signature case
// (analysis/selectors.go) and reports as the sentinel "00000000".
func fallbackOnlySelectorZero() []byte {
	var code []byte
	emit := func(b ...byte) { code = append(code, b...) }
	emit(byte(evm.PUSH1), 0x00, byte(evm.CALLDATALOAD))
	emit(byte(evm.PUSH1), 0xe0, byte(evm.SHR))
	emit(byte(evm.ISZERO))
	dest := len(code) + 2 /* PUSH1+operand */ + 1 /* JUMPI */ + 1 /* STOP */
	emit(byte(evm.PUSH1), byte(dest))
	emit(byte(evm.JUMPI))
	emit(byte(evm.STOP))
	if len(code) != dest {
		panic("fallbackOnlySelectorZero: jump destination arithmetic drifted")
	}
	emit(byte(evm.JUMPDEST))
	emit(byte(evm.STOP))
	return code
}

func TestFunctionSelectorsFallbackOnlyReportsSentinelZero(t *testing.T) {
	selectors, err := FunctionSelectors(fallbackOnlySelectorZero())
	if err != nil {
		t.Fatalf("FunctionSelectors() error = %v", err)
	}
	if want := []string{"00000000"}; !reflect.DeepEqual(selectors, want) {
		t.Errorf("FunctionSelectors() = %v, want %v", selectors, want)
	}
}

func TestContractInfoEmptyCodeYieldsNoFunctions(t *testing.T) {
	c, err := ContractInfo("", Options{Selectors: true})
	if err != nil {
		t.Fatalf("ContractInfo() error = %v", err)
	}
	if len(c.Functions) != 0 {
		t.Errorf("ContractInfo(\"\").Functions = %+v, want empty", c.Functions)
	}
}

func TestFunctionSelectorsJumpWithEmptyStackTerminatesCleanly(t *testing.T) {
	// JUMPDEST; JUMP — the jump destination is popped from an empty stack,
	// a tier-2 stack-underflow error every driver treats as clean
	// termination rather than propagating.
	selectors, err := FunctionSelectors([]byte{byte(evm.JUMPDEST), byte(evm.JUMP)})
	if err != nil {
		t.Fatalf("FunctionSelectors() error = %v", err)
	}
	if len(selectors) != 0 {
		t.Errorf("FunctionSelectors() = %v, want empty", selectors)
	}
}

func TestContractInfoMalformedHexIsRejected(t *testing.T) {
	err := func() error {
		_, err := ContractInfo("0xzz", Options{Selectors: true})
		return err
	}()
	if err == nil {
		t.Fatal("ContractInfo() with malformed hex: got nil error, want ErrMalformedHex")
	}
	var target *ErrMalformedHex
	if !errors.As(err, &target) {
		t.Errorf("ContractInfo() error = %v, want *ErrMalformedHex", err)
	}
}

func TestContractInfoRejectsWrongCodeType(t *testing.T) {
	if _, err := ContractInfo(42, Options{Selectors: true}); err == nil {
		t.Error("ContractInfo(42, ...): got nil error, want ErrMalformedHex")
	}
}

func TestContractInfoDisassembleAndCFG(t *testing.T) {
	code := fallbackOnlySelectorZero()
	c, err := ContractInfo(code, Options{Disassemble: true, ControlFlowGraph: true, BasicBlocks: true})
	if err != nil {
		t.Fatalf("ContractInfo() error = %v", err)
	}
	if len(c.Disassembled) == 0 {
		t.Error("ContractInfo().Disassembled is empty")
	}
	if c.ControlFlowGraph == nil || len(c.ControlFlowGraph.Blocks) == 0 {
		t.Error("ContractInfo().ControlFlowGraph is empty")
	}
	if len(c.BasicBlocks) == 0 {
		t.Error("ContractInfo().BasicBlocks is empty")
	}
}
