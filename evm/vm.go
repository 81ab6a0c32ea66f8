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

import (
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// log is this package's package-level logger, in the teacher's style of one
// logger per package rather than one global. evmole.Options.Debug raises
// logrus's level to Debug; by default logrus's standard level (Info) keeps
// Debug messages silent.
var log = logrus.WithField("component", "evm")

const (
	calldataSizeSentinel  = 131072
	calldataCopyMaxLength = 512
)

// StepResult describes the single opcode step() just executed.
type StepResult struct {
	PC            uint64    // pc the opcode was read from
	Op            OpCode    // the opcode executed
	Gas           uint64    // approximate gas this step cost
	Operands      []Element // popped operands, in pop order
	TouchedLabels []Label   // for MLOAD, the source labels of every contributing write
}

// VM is a single-step EVM interpreter over (code, pc, stack, memory,
// calldata). It is not a conformant EVM: it has no persistent storage, no
// real gas accounting, no inter-contract calls, and several opcodes push
// conventional placeholders rather than real values. See SPEC_FULL.md §1.
type VM struct {
	Code     []byte
	PC       uint64
	Stack    *Stack
	Memory   *Memory
	Calldata Element
	Stopped  bool

	dests       jumpdests
	lastTouched []Label
}

// NewVM returns a fresh VM over code, seeded with the given (already
// labelled) calldata Element.
func NewVM(code []byte, calldata Element) *VM {
	return &VM{
		Code:     code,
		Stack:    NewStack(),
		Memory:   NewMemory(),
		Calldata: calldata,
		dests:    jumpdestsFor(code),
	}
}

// Clone returns an independent VM: Stack and Memory are deep-copied so that
// subsequent writes on either VM never affect the other, while Code and
// Calldata (both immutable once constructed) are shared.
func (vm *VM) Clone() *VM {
	return &VM{
		Code:     vm.Code,
		PC:       vm.PC,
		Stack:    vm.Stack.clone(),
		Memory:   vm.Memory.cloneMem(),
		Calldata: vm.Calldata,
		Stopped:  vm.Stopped,
		dests:    vm.dests,
	}
}

func (m *Memory) cloneMem() *Memory {
	c := &Memory{writes: make([]memWrite, len(m.writes)), size: m.size}
	copy(c.writes, m.writes)
	return c
}

// Step advances the machine by exactly one opcode.
func (vm *VM) Step() (StepResult, error) {
	if vm.Stopped {
		return StepResult{}, ErrGasExhausted
	}
	if vm.PC >= uint64(len(vm.Code)) {
		vm.Stopped = true
		return StepResult{PC: vm.PC, Op: STOP}, nil
	}

	pc := vm.PC
	op := OpCode(vm.Code[pc])
	res := StepResult{PC: pc, Op: op, Gas: gasCost(op)}

	pop := func() (Element, error) {
		e, err := vm.Stack.Pop()
		if err == nil {
			res.Operands = append(res.Operands, e)
		}
		return e, err
	}
	push := func(e Element) error { return vm.Stack.Push(e) }

	nextPC := pc + 1
	var err error
	vm.lastTouched = nil

	switch {
	case op.IsPush():
		n := op.PushSize()
		var data [32]byte
		start := pc + 1
		for i := 0; i < n; i++ {
			if int(start)+i < len(vm.Code) {
				data[32-n+i] = vm.Code[int(start)+i]
			}
		}
		err = push(Element{Data: data})
		nextPC = pc + 1 + uint64(n)

	case op.IsDup():
		err = vm.Stack.Dup(op.DupN())

	case op.IsSwap():
		err = vm.Stack.Swap(op.SwapN())

	case op.IsLog():
		n := op.LogN()
		if _, err = pop(); err == nil {
			if _, err = pop(); err == nil {
				for i := 0; i < n && err == nil; i++ {
					_, err = pop()
				}
			}
		}

	default:
		err = vm.dispatch(op, pop, push, &nextPC)
	}

	if err != nil {
		vm.Stopped = true
		return res, err
	}

	res.TouchedLabels = vm.lastTouched
	vm.PC = nextPC
	if op.terminating() {
		vm.Stopped = true
	}
	return res, nil
}

// dispatch implements every non-PUSH/DUP/SWAP/LOG opcode. It is the single
// big switch the design notes call for: opcode first, label/shape of
// operands second (that second level lives in package analysis, which
// re-tags results after Step returns).
func (vm *VM) dispatch(op OpCode, pop func() (Element, error), push func(Element) error, nextPC *uint64) error {
	u256 := func(e Element) *uint256.Int { return e.Uint256() }

	switch op {
	case STOP, RETURN, REVERT:
		if op != STOP {
			if _, err := pop(); err != nil {
				return err
			}
			if _, err := pop(); err != nil {
				return err
			}
		}
		return nil

	case SELFDESTRUCT:
		_, err := pop()
		return err

	case JUMPDEST:
		return nil

	case ADD, SUB, MUL, DIV, SDIV, MOD, SMOD, AND, OR, XOR, SHL, SHR, SAR,
		LT, GT, SLT, SGT, EQ, BYTE, SIGNEXTEND:
		x, err := pop()
		if err != nil {
			return err
		}
		y, err := pop()
		if err != nil {
			return err
		}
		return push(Element{Data: binOp(op, x, y)})

	case EXP:
		base, err := pop()
		if err != nil {
			return err
		}
		exp, err := pop()
		if err != nil {
			return err
		}
		r := new(uint256.Int).Exp(u256(base), u256(exp))
		return push(FromUint256(r))

	case ADDMOD, MULMOD:
		x, err := pop()
		if err != nil {
			return err
		}
		y, err := pop()
		if err != nil {
			return err
		}
		m, err := pop()
		if err != nil {
			return err
		}
		r := new(uint256.Int)
		if op == ADDMOD {
			r.AddMod(u256(x), u256(y), u256(m))
		} else {
			r.MulMod(u256(x), u256(y), u256(m))
		}
		return push(FromUint256(r))

	case NOT:
		x, err := pop()
		if err != nil {
			return err
		}
		r := new(uint256.Int).Not(u256(x))
		return push(FromUint256(r))

	case ISZERO:
		x, err := pop()
		if err != nil {
			return err
		}
		return push(FromUint64(boolU64(x.IsZero())))

	case KECCAK256:
		if _, err := pop(); err != nil {
			return err
		}
		if _, err := pop(); err != nil {
			return err
		}
		return push(Zero)

	case ADDRESS, ORIGIN, CALLER, CALLVALUE, COINBASE, TIMESTAMP, NUMBER,
		PREVRANDAO, GASLIMIT, CHAINID, BASEFEE, BLOBBASEFEE, GASPRICE,
		SELFBALANCE, GAS, RETURNDATASIZE, MSIZE:
		if op == MSIZE {
			return push(FromUint64(vm.Memory.Len()))
		}
		return push(Zero)

	case PC:
		return push(FromUint64(vm.PC))

	case BALANCE, EXTCODESIZE, EXTCODEHASH, BLOCKHASH:
		if _, err := pop(); err != nil {
			return err
		}
		return push(Zero)

	case CALLDATASIZE:
		return push(FromUint64(calldataSizeSentinel))

	case CALLDATALOAD:
		off, err := pop()
		if err != nil {
			return err
		}
		var data [32]byte
		if off.Uint256().IsZero() {
			data = vm.Calldata.Data
		}
		return push(Element{Data: data, Label: vm.Calldata.Label})

	case CALLDATACOPY:
		return vm.memCopyFromCalldata(pop)

	case CODESIZE:
		return push(FromUint64(uint64(len(vm.Code))))

	case CODECOPY:
		destOff, err := pop()
		if err != nil {
			return err
		}
		off, err := pop()
		if err != nil {
			return err
		}
		size, err := pop()
		if err != nil {
			return err
		}
		n := boundedSize(size)
		o := off.Uint256().Uint64()
		buf := make([]byte, n)
		for i := uint64(0); i < n; i++ {
			if o+i < uint64(len(vm.Code)) {
				buf[i] = vm.Code[o+i]
			}
		}
		vm.Memory.Store(destOff.Uint256().Uint64(), buf, nil)
		return nil

	case EXTCODECOPY:
		for i := 0; i < 4; i++ {
			if _, err := pop(); err != nil {
				return err
			}
		}
		return nil

	case RETURNDATACOPY:
		for i := 0; i < 3; i++ {
			if _, err := pop(); err != nil {
				return err
			}
		}
		return nil

	case POP:
		_, err := pop()
		return err

	case MLOAD:
		off, err := pop()
		if err != nil {
			return err
		}
		val, labels := vm.Memory.Load(off.Uint256().Uint64())
		if err := push(Element{Data: val.Data}); err != nil {
			return err
		}
		vm.lastTouched = labels
		return nil

	case MSTORE:
		off, err := pop()
		if err != nil {
			return err
		}
		val, err := pop()
		if err != nil {
			return err
		}
		vm.Memory.Store(off.Uint256().Uint64(), val.Data[:], val.Label)
		return nil

	case MSTORE8:
		off, err := pop()
		if err != nil {
			return err
		}
		val, err := pop()
		if err != nil {
			return err
		}
		vm.Memory.StoreByte(off.Uint256().Uint64(), val.Data[31], val.Label)
		return nil

	case MCOPY:
		destOff, err := pop()
		if err != nil {
			return err
		}
		srcOff, err := pop()
		if err != nil {
			return err
		}
		size, err := pop()
		if err != nil {
			return err
		}
		n := boundedSize(size)
		data, labels := vm.Memory.read(srcOff.Uint256().Uint64(), int(n))
		var label Label
		if len(labels) > 0 {
			label = labels[0]
		}
		vm.Memory.Store(destOff.Uint256().Uint64(), data, label)
		return nil

	case SLOAD:
		if _, err := pop(); err != nil {
			return err
		}
		return push(Zero)

	case SSTORE, TSTORE:
		if _, err := pop(); err != nil {
			return err
		}
		if _, err := pop(); err != nil {
			return err
		}
		return nil

	case TLOAD:
		if _, err := pop(); err != nil {
			return err
		}
		return push(Zero)

	case BLOBHASH:
		if _, err := pop(); err != nil {
			return err
		}
		return push(Zero)

	case JUMP:
		dest, err := pop()
		if err != nil {
			return err
		}
		d := dest.Uint256().Uint64()
		if d >= uint64(len(vm.dests)) || !vm.dests[d] {
			return &ErrInvalidJumpDest{Dest: d}
		}
		*nextPC = d
		return nil

	case JUMPI:
		dest, err := pop()
		if err != nil {
			return err
		}
		cond, err := pop()
		if err != nil {
			return err
		}
		if cond.IsZero() {
			return nil
		}
		d := dest.Uint256().Uint64()
		if d >= uint64(len(vm.dests)) || !vm.dests[d] {
			return &ErrInvalidJumpDest{Dest: d}
		}
		*nextPC = d
		return nil

	case CREATE:
		for i := 0; i < 3; i++ {
			if _, err := pop(); err != nil {
				return err
			}
		}
		return push(Zero)

	case CREATE2:
		for i := 0; i < 4; i++ {
			if _, err := pop(); err != nil {
				return err
			}
		}
		return push(Zero)

	case CALL, CALLCODE:
		for i := 0; i < 7; i++ {
			if _, err := pop(); err != nil {
				return err
			}
		}
		return push(FromUint64(1))

	case DELEGATECALL, STATICCALL:
		for i := 0; i < 6; i++ {
			if _, err := pop(); err != nil {
				return err
			}
		}
		return push(FromUint64(1))

	default:
		return &ErrUnsupportedOp{Op: op, PC: vm.PC}
	}
}

// memCopyFromCalldata backs CALLDATACOPY. Sizes above calldataCopyMaxLength
// are rejected (the write is skipped) to bound the work a single adversarial
// instruction can trigger, per SPEC_FULL.md §4.1.
func (vm *VM) memCopyFromCalldata(pop func() (Element, error)) error {
	destOff, err := pop()
	if err != nil {
		return err
	}
	srcOff, err := pop()
	if err != nil {
		return err
	}
	size, err := pop()
	if err != nil {
		return err
	}
	sz := size.Uint256()
	if !sz.IsUint64() || sz.Uint64() > calldataCopyMaxLength {
		return nil
	}
	n := int(sz.Uint64())
	buf := make([]byte, n)
	if srcOff.Uint256().IsZero() {
		copy(buf, vm.Calldata.Data[:])
	}
	vm.Memory.Store(destOff.Uint256().Uint64(), buf, vm.Calldata.Label)
	return nil
}

func boundedSize(size Element) uint64 {
	v := size.Uint256()
	if !v.IsUint64() {
		return 0
	}
	n := v.Uint64()
	if n > 1<<20 {
		return 0
	}
	return n
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
