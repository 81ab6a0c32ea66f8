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

import "reflect"

// memWrite is one entry in Memory's append-only byte log.
type memWrite struct {
	offset uint64
	data   []byte
	label  Label
}

// Memory is a sparse, append-only log of (offset, bytes, label) writes. It
// never actually materialises a byte array: MLOAD-style reads reconstruct a
// window by scanning the log in reverse so that a later partial overwrite
// only masks the bytes it covers, leaving neighbouring bytes' provenance
// intact. This is what lets MLOAD-driven label propagation work (see the
// selector/arguments drivers in package analysis).
type Memory struct {
	writes []memWrite
	size   uint64
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Len returns the maximum offset+len(data) across all writes so far.
func (m *Memory) Len() uint64 { return m.size }

// Store appends a write of data at offset, tagged with label (the
// provenance of the Element the bytes came from, or nil).
func (m *Memory) Store(offset uint64, data []byte, label Label) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.writes = append(m.writes, memWrite{offset: offset, data: cp, label: label})
	if end := offset + uint64(len(data)); end > m.size {
		m.size = end
	}
}

// StoreByte appends a single-byte write, as MSTORE8 does.
func (m *Memory) StoreByte(offset uint64, b byte, label Label) {
	m.Store(offset, []byte{b}, label)
}

// Load reconstructs 32 bytes starting at offset and returns the assembled
// Element together with the deduplicated set of labels of every write that
// contributed at least one of those bytes (unfilled positions are zero and
// contribute no label).
func (m *Memory) Load(offset uint64) (Element, []Label) {
	data, labels := m.read(offset, 32)
	var e Element
	copy(e.Data[:], data)
	return e, labels
}

// read assembles n bytes starting at offset and the labels that touched them.
func (m *Memory) read(offset uint64, n int) ([]byte, []Label) {
	out := make([]byte, n)
	filled := make([]bool, n)
	var labels []Label

	// Scan the log most-recent-first so the latest write to a byte wins.
	for i := len(m.writes) - 1; i >= 0; i-- {
		w := m.writes[i]
		wEnd := w.offset + uint64(len(w.data))
		rEnd := offset + uint64(n)
		if wEnd <= offset || w.offset >= rEnd {
			continue
		}
		lo := w.offset
		if lo < offset {
			lo = offset
		}
		hi := wEnd
		if hi > rEnd {
			hi = rEnd
		}
		contributed := false
		for pos := lo; pos < hi; pos++ {
			outIdx := pos - offset
			if filled[outIdx] {
				continue
			}
			out[outIdx] = w.data[pos-w.offset]
			filled[outIdx] = true
			contributed = true
		}
		if contributed && w.label != nil && !containsLabel(labels, w.label) {
			labels = append(labels, w.label)
		}
	}
	return out, labels
}

// containsLabel linear-scans for l among labels using reflect.DeepEqual
// rather than a map keyed on Label (or a `==` comparison) directly: concrete
// label types (e.g. analysis.Arg) may embed a slice field and are not
// comparable, so both `map[Label]bool` and `l1 == l2` panic at runtime the
// first time such a label reaches this path.
func containsLabel(labels []Label, l Label) bool {
	for _, seen := range labels {
		if reflect.DeepEqual(seen, l) {
			return true
		}
	}
	return false
}

// PatchByLabel overwrites the bytes of every full 32-byte write whose label
// matches, mirroring Stack.PatchByLabel for the memory log.
func (m *Memory) PatchByLabel(match func(Label) bool, data [32]byte) {
	for i := range m.writes {
		w := &m.writes[i]
		if w.label != nil && len(w.data) == 32 && match(w.label) {
			copy(w.data, data[:])
		}
	}
}
