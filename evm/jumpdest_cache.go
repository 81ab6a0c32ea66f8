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
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru"
)

// jumpdests is a bitmap of valid JUMPDEST positions for one code array,
// indexed by pc. A position is a valid destination only if it holds a
// JUMPDEST opcode *and* is not the immediate-data tail of a preceding PUSHn
// — otherwise data bytes that happen to equal 0x5b would be mistaken for
// real jump targets.
type jumpdests []bool

func computeJumpdests(code []byte) jumpdests {
	dests := make(jumpdests, len(code))
	for pc := 0; pc < len(code); {
		op := OpCode(code[pc])
		if op == JUMPDEST {
			dests[pc] = true
			pc++
			continue
		}
		if n := op.PushSize(); n > 0 {
			pc += 1 + n
			continue
		}
		pc++
	}
	return dests
}

// 4.2/4.5's drivers run the same code through many fresh VMs and CFG passes
// (every clone, every fork, every recursive bucket branch); this cache
// spares each of them from re-walking the byte array to find JUMPDESTs.
// It is populated lazily and never mutated once written for a given key, so
// sharing it across the single-threaded, cooperative analyses in this
// module does not reintroduce cross-call mutable state (see SPEC_FULL.md §5).
var jumpdestCache, _ = lru.New(128)

func codeKey(code []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(code)
	return h.Sum64()
}

func jumpdestsFor(code []byte) jumpdests {
	key := codeKey(code)
	if v, ok := jumpdestCache.Get(key); ok {
		if d, ok := v.(jumpdests); ok && len(d) == len(code) {
			return d
		}
	}
	d := computeJumpdests(code)
	jumpdestCache.Add(key, d)
	return d
}

// IsJumpdest reports whether pc is a valid JUMPDEST in code, using the same
// cached bitmap a VM built over code would use. Exported for package
// analysis's control-flow pass, which classifies jump targets without
// driving a full VM over every candidate.
func IsJumpdest(code []byte, pc uint64) bool {
	d := jumpdestsFor(code)
	return pc < uint64(len(d)) && d[pc]
}
