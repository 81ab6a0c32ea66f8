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
	"github.com/emicklei/dot"
	"github.com/sirupsen/logrus"

	"github.com/cdump/evmole/evm"
)

var cfgLog = logrus.WithField("component", "analysis.cfg")

// CFGDefaultGasLimit bounds Pass 2's per-block dynamic-jump symbolic
// resolution, the only part of control-flow recovery that runs a VM.
const CFGDefaultGasLimit = 50_000

// maxDynamicJumpTargets caps how many distinct destinations Pass 2 collects
// for one dynamic jump/jumpi. The short symbolic run does not fork and stops
// at the block's terminator, so in practice it collects at most one.
const maxDynamicJumpTargets = 256

// SuccessorKind tags which of the five shapes spec.md §3/§6 names a block's
// successor takes. CFG block-type serialisation is this tagged variant, not
// a single flattened struct: callers should switch on Kind and only read the
// fields that variant carries.
type SuccessorKind int

const (
	// SuccJump is an unconditional jump to a single statically known target.
	SuccJump SuccessorKind = iota
	// SuccJumpi is a conditional jump: TrueTo on nonzero condition, FalseTo
	// (the fallthrough pc) otherwise.
	SuccJumpi
	// SuccDynamicJump is an unconditional jump whose destination could not be
	// read off a preceding PUSH; Targets holds every destination the short
	// symbolic run in Pass 2 collected.
	SuccDynamicJump
	// SuccDynamicJumpi is a conditional jump whose true-branch destination(s)
	// needed symbolic resolution; FalseTo is still the static fallthrough pc.
	SuccDynamicJumpi
	// SuccTerminate is a block ending in STOP/RETURN/REVERT/INVALID/
	// SELFDESTRUCT, or falling off the end of code: no successor.
	SuccTerminate
)

func (k SuccessorKind) String() string {
	switch k {
	case SuccJump:
		return "Jump"
	case SuccJumpi:
		return "Jumpi"
	case SuccDynamicJump:
		return "DynamicJump"
	case SuccDynamicJumpi:
		return "DynamicJumpi"
	case SuccTerminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// Successor is the tagged successor of one BasicBlock. Only the fields the
// Kind variant documents are meaningful; the rest are left zero.
type Successor struct {
	Kind SuccessorKind

	To      uint64   // Jump
	TrueTo  uint64   // Jumpi
	FalseTo uint64   // Jumpi, DynamicJumpi
	Targets []uint64 // DynamicJump, DynamicJumpi (true-branch targets)
}

// BasicBlock is a maximal straight-line code fragment: it starts at a
// JUMPDEST or at program entry and ends at a control-flow opcode (or at the
// end of the code array), per spec.md §4.5/§10.
type BasicBlock struct {
	Start     uint64
	End       uint64 // pc of the terminating opcode, inclusive
	Successor Successor

	reachable bool
}

// CFG is the recovered control-flow graph of one contract's bytecode:
// basic blocks in ascending start-pc order, plus Pass 3's reachability
// filter already applied to their successor edges.
type CFG struct {
	Blocks []BasicBlock
}

// BuildCFG runs all three passes spec.md §4.5 describes over code: linear
// block-cutting, terminator classification (with short symbolic execution
// for dynamic jumps), and a reachability filter from pc 0.
func BuildCFG(code []byte, gasLimit uint64) CFG {
	blocks := cutBlocks(code)
	for i := range blocks {
		classifyTerminator(code, &blocks[i], gasLimit)
	}
	filterReachable(blocks)
	return CFG{Blocks: blocks}
}

// cutBlocks is Pass 1: a linear scan cutting a new block open on every
// JUMPDEST and closing the current one on JUMP, JUMPI, STOP, RETURN,
// REVERT, INVALID, SELFDESTRUCT, or on running off the end of the code.
func cutBlocks(code []byte) []BasicBlock {
	var blocks []BasicBlock
	if len(code) == 0 {
		return blocks
	}

	start := uint64(0)
	pc := uint64(0)
	for pc < uint64(len(code)) {
		op := evm.OpCode(code[pc])

		if op == evm.JUMPDEST && pc != start {
			blocks = append(blocks, BasicBlock{Start: start, End: pc - 1})
			start = pc
		}

		if isBlockEnder(op) {
			blocks = append(blocks, BasicBlock{Start: start, End: pc})
			pc++
			start = pc
			continue
		}

		if n := op.PushSize(); n > 0 {
			pc += 1 + uint64(n)
			continue
		}
		pc++
	}

	if start < uint64(len(code)) {
		blocks = append(blocks, BasicBlock{Start: start, End: uint64(len(code)) - 1})
	}
	return blocks
}

func isBlockEnder(op evm.OpCode) bool {
	switch op {
	case evm.JUMP, evm.JUMPI, evm.STOP, evm.RETURN, evm.REVERT, evm.INVALID, evm.SELFDESTRUCT:
		return true
	default:
		return false
	}
}

// classifyTerminator is Pass 2 for one block: it inspects the opcode at
// block.End and fills in its Successor.
func classifyTerminator(code []byte, block *BasicBlock, gasLimit uint64) {
	if block.End >= uint64(len(code)) {
		block.Successor = Successor{Kind: SuccTerminate}
		return
	}

	op := evm.OpCode(code[block.End])
	fallthroughPC := block.End + 1

	switch op {
	case evm.JUMP:
		if dest, ok := staticJumpDest(code, block.End); ok {
			block.Successor = Successor{Kind: SuccJump, To: dest}
			return
		}
		targets := resolveDynamicTargets(code, block.Start, gasLimit, false)
		block.Successor = Successor{Kind: SuccDynamicJump, Targets: targets}

	case evm.JUMPI:
		if dest, ok := staticJumpDest(code, block.End); ok {
			block.Successor = Successor{Kind: SuccJumpi, TrueTo: dest, FalseTo: fallthroughPC}
			return
		}
		targets := resolveDynamicTargets(code, block.Start, gasLimit, true)
		block.Successor = Successor{Kind: SuccDynamicJumpi, Targets: targets, FalseTo: fallthroughPC}

	default:
		// STOP, RETURN, REVERT, INVALID, SELFDESTRUCT, or a block that ran
		// off the end of the array without hitting an ender: no successor.
		block.Successor = Successor{Kind: SuccTerminate}
	}
}

// staticJumpDest resolves a jump/jumpi's destination by looking at the
// opcode immediately preceding it: if it's a PUSHn whose immediate data fits
// in a pc, that's the static target spec.md §4.5 calls for. Anything else
// (DUP, SWAP, arithmetic result, ...) means the destination isn't knowable
// without symbolic execution. A literal that doesn't land on an actual
// JUMPDEST is rejected too — the jump would revert at runtime, and treating
// it as unresolved routes it through resolveDynamicTargets instead, which is
// harmless (that block's short run still terminates cleanly on the invalid
// destination) and keeps this path's definition of "static" exact.
func staticJumpDest(code []byte, jumpPC uint64) (uint64, bool) {
	prevOp, prevStart, ok := precedingInstruction(code, jumpPC)
	if !ok {
		return 0, false
	}
	if n := prevOp.PushSize(); n > 0 {
		var data [32]byte
		for i := 0; i < n; i++ {
			if int(prevStart)+1+i < len(code) {
				data[32-n+i] = code[int(prevStart)+1+i]
			}
		}
		el := evm.Element{Data: data}
		v := el.Uint256()
		if v.IsUint64() && evm.IsJumpdest(code, v.Uint64()) {
			return v.Uint64(), true
		}
	}
	return 0, false
}

// precedingInstruction walks code from pc 0 to find the instruction whose
// bytes immediately precede pc. A full linear rescan is the only reliable way to do this over
// a raw byte array, since PUSH immediates can contain bytes that look like
// opcodes.
func precedingInstruction(code []byte, pc uint64) (op evm.OpCode, start uint64, ok bool) {
	cur := uint64(0)
	var lastOp evm.OpCode
	var lastStart uint64
	found := false
	for cur < pc && cur < uint64(len(code)) {
		lastOp = evm.OpCode(code[cur])
		lastStart = cur
		found = true
		if n := lastOp.PushSize(); n > 0 {
			cur += 1 + uint64(n)
		} else {
			cur++
		}
	}
	if !found || cur != pc {
		return 0, 0, false
	}
	return lastOp, lastStart, true
}

// resolveDynamicTargets is Pass 2's fallback for a jump whose destination
// isn't a literal preceding PUSH: a short symbolic run starting at the
// block's own entry with a fresh stack, recording the destination popped by
// the first JUMP/JUMPI it reaches (the block's terminator) and then stopping.
// It returns at most one target, and none when the run fails before the
// terminator pops a destination (e.g. stack underflow) or runs out of gas.
// wantJumpi selects whether JUMP or JUMPI destinations are collected,
// matching which terminator this block actually has.
func resolveDynamicTargets(code []byte, blockStart uint64, gasLimit uint64, wantJumpi bool) []uint64 {
	vm := evm.NewVM(code, evm.Element{Label: Calldata{}})
	vm.PC = blockStart

	var gasUsed uint64
	var targets []uint64
	seen := mapset.NewSet()

	for !vm.Stopped && len(targets) < maxDynamicJumpTargets {
		res, err := vm.Step()
		gasUsed += res.Gas

		// The popped destination operand is captured by Step even on a
		// step that goes on to fail (e.g. the computed destination isn't
		// actually a JUMPDEST) — read it before treating err as a stop
		// signal, since a real execution of this block may never reach
		// this exact destination but the value is still a possible target.
		isTarget := (res.Op == evm.JUMP && !wantJumpi) || (res.Op == evm.JUMPI && wantJumpi)
		if isTarget && len(res.Operands) > 0 {
			dest := res.Operands[0].Uint256()
			if dest.IsUint64() {
				d := dest.Uint64()
				if !seen.Contains(d) {
					seen.Add(d)
					targets = append(targets, d)
				}
			}
			break
		}

		if err != nil {
			cfgLog.WithError(err).Debug("dynamic jump resolution stopped")
			break
		}
		if gasUsed > gasLimit {
			break
		}
	}
	return targets
}

// filterReachable is Pass 3: it marks every block transitively reachable
// from pc 0 via its successor edges, then, in reachable blocks only, drops
// DynamicJump/DynamicJumpi targets that are not the start of any block.
// Static Jump/Jumpi targets are left as they are. Blocks unreachable from
// pc 0 stay in the list with their successor edges unchanged; they are only
// left unmarked as reachable.
func filterReachable(blocks []BasicBlock) {
	if len(blocks) == 0 {
		return
	}

	byStart := make(map[uint64]int, len(blocks))
	for i, b := range blocks {
		byStart[b.Start] = i
	}

	visited := mapset.NewSet()
	var stack []uint64
	stack = append(stack, blocks[0].Start)

	for len(stack) > 0 {
		pc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited.Contains(pc) {
			continue
		}
		visited.Add(pc)

		idx, ok := byStart[pc]
		if !ok {
			continue
		}
		for _, succ := range successorTargets(blocks[idx].Successor) {
			if !visited.Contains(succ) {
				stack = append(stack, succ)
			}
		}
	}

	for i := range blocks {
		blocks[i].reachable = visited.Contains(blocks[i].Start)
	}

	for i := range blocks {
		if !blocks[i].reachable {
			continue
		}
		s := &blocks[i].Successor
		switch s.Kind {
		case SuccDynamicJump, SuccDynamicJumpi:
			s.Targets = filterUnreachableTargets(s.Targets, byStart)
		}
	}
}

func filterUnreachableTargets(targets []uint64, byStart map[uint64]int) []uint64 {
	out := targets[:0]
	for _, t := range targets {
		if _, ok := byStart[t]; !ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func successorTargets(s Successor) []uint64 {
	switch s.Kind {
	case SuccJump:
		return []uint64{s.To}
	case SuccJumpi:
		return []uint64{s.TrueTo, s.FalseTo}
	case SuccDynamicJump:
		return s.Targets
	case SuccDynamicJumpi:
		return append(append([]uint64{}, s.Targets...), s.FalseTo)
	default:
		return nil
	}
}

// DOT renders cfg as a Graphviz digraph: one node per basic block labelled
// by its [start,end] pc range, one edge per successor variant. This is
// additive rendering surface alongside the plain struct serialisation the
// reachability-filtered Blocks already provide; it never replaces it.
func (cfg CFG) DOT() string {
	g := dot.NewGraph(dot.Directed)
	nodes := make(map[uint64]dot.Node, len(cfg.Blocks))

	for _, b := range cfg.Blocks {
		label := fmt.Sprintf("%d-%d", b.Start, b.End)
		nodes[b.Start] = g.Node(label)
	}

	for _, b := range cfg.Blocks {
		from := nodes[b.Start]
		switch b.Successor.Kind {
		case SuccJump:
			if to, ok := nodes[b.Successor.To]; ok {
				g.Edge(from, to)
			}
		case SuccJumpi:
			if to, ok := nodes[b.Successor.TrueTo]; ok {
				g.Edge(from, to).Label("true")
			}
			if to, ok := nodes[b.Successor.FalseTo]; ok {
				g.Edge(from, to).Label("false")
			}
		case SuccDynamicJump:
			for _, t := range b.Successor.Targets {
				if to, ok := nodes[t]; ok {
					g.Edge(from, to).Label("dynamic")
				}
			}
		case SuccDynamicJumpi:
			for _, t := range b.Successor.Targets {
				if to, ok := nodes[t]; ok {
					g.Edge(from, to).Label("dynamic-true")
				}
			}
			if to, ok := nodes[b.Successor.FalseTo]; ok {
				g.Edge(from, to).Label("false")
			}
		}
	}

	return g.String()
}
