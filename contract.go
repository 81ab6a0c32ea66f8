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

// Package evmole recovers high-level ABI information — function selectors,
// argument types, state mutability, and control-flow graph — from raw EVM
// runtime bytecode, without source code, compiler metadata, or transaction
// history. See package analysis for the labelled symbolic-execution drivers
// this package wires together.
package evmole

import (
	"github.com/sirupsen/logrus"

	"github.com/cdump/evmole/analysis"
)

var log = logrus.WithField("component", "evmole")

// Options selects which parts of ContractInfo's report to compute and
// tunes the selector and argument gas budgets; the mutability and CFG
// analyses use their fixed package defaults (spec.md §5/§9,
// SPEC_FULL.md §6). All flags default false; computing nothing beyond
// Selectors is the cheapest possible call.
type Options struct {
	Selectors        bool
	Arguments        bool
	StateMutability  bool
	BasicBlocks      bool
	ControlFlowGraph bool
	Disassemble      bool

	// SelectorsGasLimit and ArgumentsGasLimit default to
	// analysis.SelectorsDefaultGasLimit and analysis.ArgumentsDefaultGasLimit
	// (5e5/5e4, spec.md §9's tunable gas budgets) when left zero.
	SelectorsGasLimit uint64
	ArgumentsGasLimit uint64

	// Debug sets logrus's global level to Debug, which enables the drivers'
	// Debug messages (why a run stopped, how many selectors were harvested).
	// The level stays raised after the call returns.
	Debug bool
}

func (o Options) selectorsGasLimit() uint64 {
	if o.SelectorsGasLimit != 0 {
		return o.SelectorsGasLimit
	}
	return analysis.SelectorsDefaultGasLimit
}

func (o Options) argumentsGasLimit() uint64 {
	if o.ArgumentsGasLimit != 0 {
		return o.ArgumentsGasLimit
	}
	return analysis.ArgumentsDefaultGasLimit
}

// Function is one dispatched selector's recovered ABI facts. Arguments and
// StateMutability are empty strings when their Options flag wasn't set.
type Function struct {
	Selector        string
	Arguments       string
	StateMutability string
}

// Contract is ContractInfo's full report: the requested subset of
// per-function facts, plus whole-program views (disassembly, basic
// blocks, control-flow graph) gated by their own Options flags.
type Contract struct {
	Functions []Function

	Disassembled     []string
	BasicBlocks      []analysis.BasicBlock
	ControlFlowGraph *analysis.CFG
}

// ContractInfo is the library's primary entry point (spec.md §6). code is
// either raw bytecode ([]byte) or a hex string (optional `0x` prefix,
// case-insensitive). Requesting Arguments or StateMutability implicitly
// computes Selectors first, since both are per-selector drivers.
func ContractInfo(code any, opts Options) (Contract, error) {
	raw, err := decodeCode(code)
	if err != nil {
		return Contract{}, err
	}
	if opts.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var report Contract
	needSelectors := opts.Selectors || opts.Arguments || opts.StateMutability

	var selectors []string
	if needSelectors {
		selectors = analysis.Selectors(raw, opts.selectorsGasLimit())
		log.WithField("count", len(selectors)).Debug("harvested selectors")
	}

	if needSelectors {
		report.Functions = make([]Function, 0, len(selectors))
		for _, sel := range selectors {
			fn := Function{Selector: sel}
			selBytes, ok := parseSelector(sel)
			if !ok {
				log.WithField("selector", sel).Warn("skipping malformed harvested selector")
				continue
			}
			if opts.Arguments {
				fn.Arguments = analysis.Arguments(raw, selBytes, opts.argumentsGasLimit())
			}
			if opts.StateMutability {
				fn.StateMutability = analysis.StateMutability(raw, selBytes, analysis.MutabilityDefaultGasLimit)
			}
			report.Functions = append(report.Functions, fn)
		}
	}

	if opts.Disassemble {
		report.Disassembled = Disassemble(raw)
	}

	if opts.BasicBlocks || opts.ControlFlowGraph {
		cfg := analysis.BuildCFG(raw, analysis.CFGDefaultGasLimit)
		if opts.ControlFlowGraph {
			report.ControlFlowGraph = &cfg
		}
		if opts.BasicBlocks {
			report.BasicBlocks = cfg.Blocks
		}
	}

	return report, nil
}

// FunctionSelectors is a convenience wrapper equivalent to
// ContractInfo(code, Options{Selectors: true}).Functions' selectors.
func FunctionSelectors(code any) ([]string, error) {
	raw, err := decodeCode(code)
	if err != nil {
		return nil, err
	}
	return analysis.Selectors(raw, analysis.SelectorsDefaultGasLimit), nil
}

// FunctionArguments is a convenience wrapper around the arguments driver
// for one already-known selector (an 8-hex-character string, no prefix).
func FunctionArguments(code any, selector string) (string, error) {
	raw, err := decodeCode(code)
	if err != nil {
		return "", err
	}
	sel, ok := parseSelector(selector)
	if !ok {
		return "", &ErrMalformedHex{Reason: "selector must be 8 hex characters"}
	}
	return analysis.Arguments(raw, sel, analysis.ArgumentsDefaultGasLimit), nil
}

// FunctionStateMutability is a convenience wrapper around the mutability
// driver for one already-known selector.
func FunctionStateMutability(code any, selector string) (string, error) {
	raw, err := decodeCode(code)
	if err != nil {
		return "", err
	}
	sel, ok := parseSelector(selector)
	if !ok {
		return "", &ErrMalformedHex{Reason: "selector must be 8 hex characters"}
	}
	return analysis.StateMutability(raw, sel, analysis.MutabilityDefaultGasLimit), nil
}

// parseSelector decodes an 8-lowercase-hex-character selector string (the
// exact format Selectors/formatSelector produce) into its 4 raw bytes.
func parseSelector(s string) ([4]byte, bool) {
	var out [4]byte
	if len(s) != 8 {
		return out, false
	}
	for i := 0; i < 4; i++ {
		hi, ok1 := hexNibble(s[i*2])
		lo, ok2 := hexNibble(s[i*2+1])
		if !ok1 || !ok2 {
			return out, false
		}
		out[i] = hi<<4 | lo
	}
	return out, true
}

func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
}
