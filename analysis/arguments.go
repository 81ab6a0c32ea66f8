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
	"strings"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/cdump/evmole/evm"
)

var argLog = logrus.WithField("component", "analysis.arguments")

// ArgumentsDefaultGasLimit is the default budget spec.md §4.3/§9 names for
// argument-type inference.
const ArgumentsDefaultGasLimit = 50_000

// argTypeInfoTag distinguishes a dynamic (length-prefixed) node from a
// fixed-size array node in the Info tree; the zero value means neither.
type argTypeInfoTag int

const (
	infoNone argTypeInfoTag = iota
	infoDynamic
	infoArray
)

type argTypeInfo struct {
	tag       argTypeInfoTag
	nElements int
}

type argName struct {
	name       string
	confidence int
}

// argInfo is one node of the nested-argument tree: a leaf carries a type
// name, an array/dynamic node carries argTypeInfo, and any node may have
// children keyed by byte offset within its own 32-byte-word slots.
type argInfo struct {
	info     *argTypeInfo
	name     *argName
	children map[int]*argInfo
}

func newArgInfo() *argInfo {
	return &argInfo{children: map[int]*argInfo{}}
}

func (n *argInfo) toStr(isRoot bool) string {
	if n.name != nil {
		name := n.name.name
		if name == "bytes" {
			switch {
			case n.info == nil:
				return name
			case n.info.tag == infoArray && n.info.nElements == 0:
				return name
			case n.info.tag == infoDynamic && n.info.nElements == 1:
				return name
			}
		} else if len(n.children) == 0 {
			if n.info == nil || n.info.tag == infoDynamic {
				return name
			}
		}
	}

	startKey := 0
	if n.info != nil && n.info.tag == infoArray {
		startKey = 32
	}
	endKey := 0
	for k := range n.children {
		if k > endKey {
			endKey = k
		}
	}
	if n.info != nil && (n.info.tag == infoArray || n.info.tag == infoDynamic) {
		if v := n.info.nElements * 32; v > endKey {
			endKey = v
		}
	}

	var q []string
	for k := startKey; k <= endKey; k += 32 {
		if child, ok := n.children[k]; ok {
			q = append(q, child.toStr(false))
		} else {
			q = append(q, "uint256")
		}
	}

	var c string
	if len(q) > 1 && !isRoot {
		c = "(" + strings.Join(q, ",") + ")"
	} else {
		c = strings.Join(q, ",")
	}

	if n.info != nil && n.info.tag == infoArray {
		return c + "[]"
	}

	if n.info != nil && n.info.tag == infoDynamic {
		if endKey == 0 && len(n.children) == 0 {
			return "bytes"
		}
		if endKey == 32 {
			if len(n.children) == 0 {
				return "uint256[]"
			}
			if len(n.children) == 1 {
				for _, child := range n.children {
					if child.info == nil {
						return q[1] + "[]"
					}
				}
			}
		}
	}

	return c
}

// argsResult accumulates the nested argument tree plus a set of paths known
// not to be bool (once an Arg participates in arithmetic, a later
// ISZERO(ISZERO) can never relabel it bool again).
type argsResult struct {
	data    *argInfo
	notBool map[string]bool
}

func newArgsResult() *argsResult {
	return &argsResult{data: newArgInfo(), notBool: map[string]bool{}}
}

func pathKey(path []int) string { return fmt.Sprint(path) }

func fullPath(path argPath, offset uint64) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = int(offset)
	return out
}

func (r *argsResult) getOrCreate(path []int) *argInfo {
	node := r.data
	for _, key := range path {
		child, ok := node.children[key]
		if !ok {
			child = newArgInfo()
			node.children[key] = child
		}
		node = child
	}
	return node
}

func (r *argsResult) get(path []int) *argInfo {
	node := r.data
	for _, key := range path {
		child, ok := node.children[key]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

func (r *argsResult) markNotBool(path argPath, offset uint64) {
	fp := fullPath(path, offset)
	if el := r.get(fp); el != nil && el.name != nil && el.name.name == "bool" {
		el.name = nil
	}
	r.notBool[pathKey(fp)] = true
}

// setTname writes a type name at path+offset (offset<0 means "use path as
// the full key, it's already complete"), subject to a confidence score: a
// write only wins over an existing name if its confidence is strictly
// higher.
func (r *argsResult) setTname(path argPath, offset int64, tname string, confidence int) {
	var fp []int
	if offset >= 0 {
		fp = fullPath(path, uint64(offset))
	} else {
		fp = []int(path)
	}
	if tname == "bool" && r.notBool[pathKey(fp)] {
		return
	}
	el := r.getOrCreate(fp)
	if el.name != nil && confidence <= el.name.confidence {
		return
	}
	el.name = &argName{name: tname, confidence: confidence}
}

func (r *argsResult) arrayInPath(path argPath) []bool {
	ret := make([]bool, 0, len(path))
	node := r.data
	for _, p := range path {
		if node == nil {
			ret = append(ret, false)
			continue
		}
		child := node.children[p]
		ret = append(ret, child != nil && child.info != nil && child.info.tag == infoArray)
		node = child
	}
	return ret
}

func (r *argsResult) setInfo(path argPath, tinfo argTypeInfo) {
	if len(path) == 0 {
		return
	}
	el := r.getOrCreate(path)
	if tinfo.tag == infoDynamic {
		if el.info != nil && el.info.tag == infoDynamic && el.info.nElements > tinfo.nElements {
			return
		}
		if el.info != nil && el.info.tag == infoArray {
			return
		}
	}
	if el.info != nil && el.info.tag == infoArray && tinfo.tag == infoArray {
		if tinfo.nElements < el.info.nElements {
			return
		}
	}
	el.info = &tinfo
}

func (r *argsResult) joinToString() string {
	if len(r.data.children) == 0 {
		return ""
	}
	return r.data.toStr(true)
}

// andMaskToType recognises a contiguous low-bit mask (uintN/address) or,
// byte-reversed, a contiguous high-bit mask (bytesN); anything else yields
// no type.
func andMaskToType(mask [32]byte) string {
	v := new(uint256.Int).SetBytes32(mask[:])
	if v.IsZero() {
		return ""
	}
	one := uint256.NewInt(1)
	vPlus1 := new(uint256.Int).Add(v, one)
	if new(uint256.Int).And(v, vPlus1).IsZero() {
		bl := v.BitLen()
		if bl%8 == 0 {
			if bl == 160 {
				return "address"
			}
			return fmt.Sprintf("uint%d", bl)
		}
		return ""
	}
	var rev [32]byte
	for i, b := range mask {
		rev[31-i] = b
	}
	m := new(uint256.Int).SetBytes32(rev[:])
	mPlus1 := new(uint256.Int).Add(m, one)
	if new(uint256.Int).And(m, mPlus1).IsZero() {
		bl := m.BitLen()
		if bl%8 == 0 {
			return fmt.Sprintf("bytes%d", bl/8)
		}
	}
	return ""
}

// Arguments runs the per-selector argument-inference driver and returns the
// canonical Solidity type signature (no spaces, empty string for no args).
func Arguments(code []byte, selector [4]byte, gasLimit uint64) string {
	var data [32]byte
	copy(data[:4], selector[:])
	vm := evm.NewVM(code, evm.Element{Data: data, Label: Calldata{}})

	args := newArgsResult()
	insideFunction := false
	var gasUsed uint64

	for !vm.Stopped {
		res, err := vm.Step()
		if err != nil {
			argLog.WithError(err).Debug("clean termination")
			break
		}
		gasUsed += res.Gas
		if gasUsed > gasLimit {
			break
		}

		if !insideFunction {
			if entersFunction(res, selector) {
				insideFunction = true
			}
			continue
		}

		handleArgumentStep(vm, res, args)
	}

	return args.joinToString()
}

func handleArgumentStep(vm *evm.VM, res evm.StepResult, args *argsResult) {
	switch res.Op {
	case evm.CALLDATALOAD:
		handleCalldataRead(vm, res.Operands[0], args, nil)

	case evm.CALLDATACOPY:
		if len(res.Operands) != 3 {
			return
		}
		memOff := res.Operands[0].Uint256().Uint64()
		handleCalldataRead(vm, res.Operands[1], args, &memOff)

	case evm.ADD:
		handleAdd(vm, res.Operands, args)

	case evm.MUL, evm.SHL:
		handleMulShl(vm, res.Op, res.Operands, args)

	case evm.LT, evm.GT:
		handleLtGt(vm, res.Op, res.Operands, args)

	case evm.AND:
		handleAnd(vm, res.Operands, args)

	case evm.EQ:
		handleEq(res.Operands, args)

	case evm.ISZERO:
		handleIsZero(vm, res.Operands, args)

	case evm.SIGNEXTEND:
		handleSignExtend(res.Operands, args)

	case evm.BYTE:
		handleByteOp(res.Operands, args)
	}
}

// handleCalldataRead implements both branches of spec.md §4.3's
// CALLDATALOAD/CALLDATACOPY rule: nested access through an existing Arg
// pointer, or first-time detection of a top-level argument slot. memOff is
// non-nil for CALLDATACOPY (the destination memory offset the bytes landed
// at); nil for CALLDATALOAD (the loaded value sits on the stack top).
func handleCalldataRead(vm *evm.VM, offsetOperand evm.Element, args *argsResult, memOff *uint64) {
	if arg, ok := offsetOperand.Label.(Arg); ok && arg.AddVal >= 4 && (arg.AddVal-4)%32 == 0 {
		fp := fullPath(arg.Path, arg.Offset)
		po := uint64(0)
		if arg.AddVal != 4 {
			for _, isArr := range args.arrayInPath(arg.Path) {
				if isArr {
					po += 32
				}
			}
			if po > arg.AddVal-4 {
				po = 0
			}
		}
		newOff := arg.AddVal - 4 - po
		args.setInfo(argPath(fp), argTypeInfo{tag: infoDynamic, nElements: int(newOff / 32)})

		if newOff == 0 {
			if arr := args.arrayInPath(argPath(fp)); len(arr) > 0 && arr[len(arr)-1] {
				one := oneWord()
				if memOff == nil {
					setStackTopData(vm, one)
				} else {
					vm.Memory.Store(*memOff, one[:], nil)
				}
			}
		}

		newLabel := Arg{Offset: newOff, Path: fullPath(arg.Path, arg.Offset)[:len(arg.Path)+1], AddVal: 0}
		if memOff == nil {
			setStackTopLabel(vm, newLabel)
		} else {
			args.setTname(arg.Path, int64(arg.Offset), "bytes", 10)
			retagMemory(vm, *memOff, newLabel)
		}
		return
	}

	off := offsetOperand.Uint256()
	if !off.IsUint64() {
		return
	}
	offV := off.Uint64()
	const trustedForwarderGuard = 1024
	if offV < 4 || offV >= calldataSizeSentinelConst-trustedForwarderGuard {
		return
	}
	args.getOrCreate([]int{int(offV - 4)})
	newLabel := Arg{Offset: offV - 4, Path: nil, AddVal: 0}
	if memOff == nil {
		setStackTopLabel(vm, newLabel)
	} else {
		retagMemory(vm, *memOff, newLabel)
	}
}

const calldataSizeSentinelConst = 131072

func oneWord() [32]byte {
	var b [32]byte
	b[31] = 1
	return b
}

func setStackTopData(vm *evm.VM, data [32]byte) {
	top, err := vm.Stack.Peek()
	if err != nil {
		return
	}
	top.Data = data
	_ = vm.Stack.SetBack(0, top)
}

func setStackTopLabel(vm *evm.VM, l evm.Label) {
	retagTop(vm, l)
}

func retagMemory(vm *evm.VM, offset uint64, l evm.Label) {
	val, _ := vm.Memory.Load(offset)
	vm.Memory.Store(offset, val.Data[:], l)
}

func handleAdd(vm *evm.VM, operands []evm.Element, args *argsResult) {
	if len(operands) != 2 {
		return
	}
	x, y := operands[0], operands[1]
	xArg, xOk := x.Label.(Arg)
	yArg, yOk := y.Label.(Arg)

	if xOk && yOk {
		args.markNotBool(xArg.Path, xArg.Offset)
		args.markNotBool(yArg.Path, yArg.Offset)
		if len(xArg.Path) > len(yArg.Path) {
			retagTop(vm, Arg{Offset: xArg.Offset, Path: xArg.Path, AddVal: xArg.AddVal + yArg.AddVal, AndMask: xArg.AndMask})
		} else {
			retagTop(vm, Arg{Offset: yArg.Offset, Path: yArg.Path, AddVal: xArg.AddVal + yArg.AddVal, AndMask: yArg.AndMask})
		}
		return
	}

	var arg Arg
	var el, other evm.Element
	switch {
	case xOk:
		arg, el, other = xArg, x, y
	case yOk:
		arg, el, other = yArg, y, x
	default:
		return
	}
	args.markNotBool(arg.Path, arg.Offset)

	otherVal := other.Uint256()
	e256m1 := new(uint256.Int).Not(uint256.NewInt(0))
	if arg.Offset == 0 && arg.AddVal == 0 && len(arg.Path) != 0 &&
		el.Uint256().IsZero() && otherVal.Eq(e256m1) {
		setStackTopData(vm, [32]byte{})
	}

	sum := new(uint256.Int).Add(otherVal, uint256.NewInt(arg.AddVal))
	if sum.IsUint64() && sum.Uint64() < (1<<32) {
		retagTop(vm, Arg{Offset: arg.Offset, Path: arg.Path, AddVal: sum.Uint64(), AndMask: arg.AndMask})
	}
}

func handleMulShl(vm *evm.VM, op evm.OpCode, operands []evm.Element, args *argsResult) {
	if len(operands) != 2 {
		return
	}
	x, y := operands[0], operands[1]

	var arg Arg
	var other evm.Element
	var ok bool
	switch op {
	case evm.MUL:
		if a, isA := x.Label.(Arg); isA && a.Offset == 0 && a.AddVal == 0 {
			arg, other, ok = a, y, true
		} else if a, isB := y.Label.(Arg); isB && a.Offset == 0 && a.AddVal == 0 {
			arg, other, ok = a, x, true
		}
	case evm.SHL:
		if a, isB := y.Label.(Arg); isB && a.Offset == 0 && a.AddVal == 0 {
			arg, other, ok = a, x, true
		}
	}
	if !ok {
		// Fallback: any MUL touching an Arg that isn't the fresh
		// length-word pattern above still rules the value out as bool.
		if op == evm.MUL {
			if a, isArg := x.Label.(Arg); isArg {
				args.markNotBool(a.Path, a.Offset)
			}
			if a, isArg := y.Label.(Arg); isArg {
				args.markNotBool(a.Path, a.Offset)
			}
		}
		return
	}

	args.markNotBool(arg.Path, 0)
	if otherArg, isArg := other.Label.(Arg); isArg {
		args.markNotBool(otherArg.Path, otherArg.Offset)
	}
	if len(arg.Path) == 0 {
		return
	}

	mult := other.Uint256().Uint64()
	if op == evm.SHL {
		mult = uint64(1) << mult
	}

	switch {
	case mult == 1:
		args.setTname(arg.Path, -1, "bytes", 10)
	case mult == 2:
		args.setTname(arg.Path, -1, "string", 20)
	case mult%32 == 0 && mult >= 32 && mult <= 3200:
		args.setInfo(arg.Path, argTypeInfo{tag: infoArray, nElements: int(mult / 32)})
		match := func(l evm.Label) bool {
			a, ok := l.(Arg)
			return ok && a.Offset == 0 && a.Path.equal(arg.Path) && a.AddVal == 0
		}
		one := oneWord()
		vm.Stack.PatchByLabel(match, one)
		vm.Memory.PatchByLabel(match, one)
		setStackTopData(vm, other.Data)
	}
}

func handleLtGt(vm *evm.VM, op evm.OpCode, operands []evm.Element, args *argsResult) {
	if len(operands) != 2 {
		return
	}
	x, y := operands[0], operands[1]

	// GT(Arg(0,path,0,nil), ot) or LT(ot, Arg(0,path,0,nil)): an array
	// bounds check; 0 or 31 on the other side means "treat as in range".
	if a, ok := x.Label.(Arg); ok && op == evm.GT && a.Offset == 0 && a.AddVal == 0 && a.AndMask == nil {
		args.markNotBool(a.Path, 0)
		v := y.Uint256()
		if v.IsUint64() && (v.Uint64() == 0 || v.Uint64() == 31) {
			setStackTopData(vm, oneWord())
		}
		return
	}
	if a, ok := y.Label.(Arg); ok && op == evm.LT && a.Offset == 0 && a.AddVal == 0 && a.AndMask == nil {
		args.markNotBool(a.Path, 0)
		v := x.Uint256()
		if v.IsUint64() && (v.Uint64() == 0 || v.Uint64() == 31) {
			setStackTopData(vm, oneWord())
		}
		return
	}

	if a, ok := x.Label.(Arg); ok {
		args.markNotBool(a.Path, a.Offset)
	}
	if a, ok := y.Label.(Arg); ok {
		args.markNotBool(a.Path, a.Offset)
	}
}

func handleAnd(vm *evm.VM, operands []evm.Element, args *argsResult) {
	if len(operands) != 2 {
		return
	}
	x, y := operands[0], operands[1]

	var arg Arg
	var mask evm.Element
	var ok bool
	if a, isA := x.Label.(Arg); isA && a.AndMask == nil {
		arg, mask, ok = a, y, true
	} else if a, isB := y.Label.(Arg); isB && a.AndMask == nil {
		arg, mask, ok = a, x, true
	}
	if !ok {
		return
	}
	args.markNotBool(arg.Path, arg.Offset)

	t := andMaskToType(mask.Data)
	if t == "" {
		return
	}
	args.setTname(arg.Path, int64(arg.Offset), t, 5)
	maskCopy := mask.Data
	retagTop(vm, Arg{Offset: arg.Offset, Path: arg.Path, AddVal: arg.AddVal, AndMask: &maskCopy})
}

func handleEq(operands []evm.Element, args *argsResult) {
	if len(operands) != 2 {
		return
	}
	x, y := operands[0], operands[1]
	a1, ok1 := x.Label.(Arg)
	a2, ok2 := y.Label.(Arg)
	if !ok1 || !ok2 {
		return
	}
	// One side is the freshly-masked Arg (mask set), the other the
	// unmasked original; if they denote the same slot this EQ is
	// confirming the earlier AND's inferred type.
	var masked, plain Arg
	switch {
	case a1.AndMask != nil && a2.AndMask == nil:
		masked, plain = a1, a2
	case a2.AndMask != nil && a1.AndMask == nil:
		masked, plain = a2, a1
	default:
		return
	}
	if masked.Offset != plain.Offset || !masked.Path.equal(plain.Path) || masked.AddVal != plain.AddVal {
		return
	}
	if t := andMaskToType(*masked.AndMask); t != "" {
		args.setTname(plain.Path, int64(plain.Offset), t, 20)
	}
}

func handleIsZero(vm *evm.VM, operands []evm.Element, args *argsResult) {
	if len(operands) != 1 {
		return
	}
	x := operands[0]

	if a, ok := x.Label.(Arg); ok {
		retagTop(vm, IsZeroResult{Offset: a.Offset, Path: a.Path, AddVal: a.AddVal, AndMask: a.AndMask})
		return
	}

	iz, ok := x.Label.(IsZeroResult)
	if !ok {
		return
	}
	isBool := true
	if isDivisorZeroCheck(vm) {
		isBool = false
	}
	if isBool {
		args.setTname(iz.Path, int64(iz.Offset), "bool", 5)
	}
}

// isDivisorZeroCheck recognises `ISZERO ISZERO PUSHn off JUMPI ... JUMPDEST
// DIV`: a zero-divisor guard, not a genuine bool argument, per spec.md §4.3.
func isDivisorZeroCheck(vm *evm.VM) bool {
	pc := vm.PC
	if pc >= uint64(len(vm.Code)) {
		return false
	}
	op := evm.OpCode(vm.Code[pc])
	if !op.IsPush() {
		return false
	}
	n := op.PushSize()
	if n == 0 || n > 4 {
		return false
	}
	end := int(pc) + 1 + n
	if end >= len(vm.Code) || evm.OpCode(vm.Code[end]) != evm.JUMPI {
		return false
	}
	var dest uint64
	for i := 0; i < n; i++ {
		dest = dest<<8 | uint64(vm.Code[int(pc)+1+i])
	}
	if dest+1 >= uint64(len(vm.Code)) {
		return false
	}
	return evm.OpCode(vm.Code[dest]) == evm.JUMPDEST && evm.OpCode(vm.Code[dest+1]) == evm.DIV
}

func handleSignExtend(operands []evm.Element, args *argsResult) {
	if len(operands) != 2 {
		return
	}
	s0, y := operands[0], operands[1]
	a, ok := y.Label.(Arg)
	if !ok {
		return
	}
	k := s0.Uint256()
	if !k.IsUint64() || k.Uint64() >= 32 {
		return
	}
	args.setTname(a.Path, int64(a.Offset), fmt.Sprintf("int%d", (k.Uint64()+1)*8), 20)
}

func handleByteOp(operands []evm.Element, args *argsResult) {
	if len(operands) != 2 {
		return
	}
	y := operands[1]
	a, ok := y.Label.(Arg)
	if !ok {
		return
	}
	args.setTname(a.Path, int64(a.Offset), "bytes32", 4)
}
