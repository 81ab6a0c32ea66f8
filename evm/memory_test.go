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
	"bytes"
	"testing"
)

type testLabel struct{ name string }

func (testLabel) isLabel() {}

func TestMemoryStoreLoadRoundTrip(t *testing.T) {
	m := NewMemory()
	data := bytes.Repeat([]byte{0xAB}, 32)
	lbl := testLabel{"a"}
	m.Store(0, data, lbl)

	e, labels := m.Load(0)
	if !bytes.Equal(e.Data[:], data) {
		t.Errorf("Load = %x, want %x", e.Data, data)
	}
	if len(labels) != 1 || labels[0] != Label(lbl) {
		t.Errorf("labels = %v, want [%v]", labels, lbl)
	}
}

func TestMemoryPartialOverwritePreservesNeighbours(t *testing.T) {
	m := NewMemory()
	first := bytes.Repeat([]byte{0x11}, 32)
	m.Store(0, first, testLabel{"first"})
	m.Store(4, []byte{0x22, 0x22}, testLabel{"second"})

	e, labels := m.Load(0)
	want := append([]byte{}, first...)
	want[4], want[5] = 0x22, 0x22
	if !bytes.Equal(e.Data[:], want) {
		t.Errorf("Load = %x, want %x", e.Data, want)
	}
	if len(labels) != 2 {
		t.Errorf("labels = %v, want 2 contributing writes", labels)
	}
}

func TestMemoryLoadUnwrittenIsZero(t *testing.T) {
	m := NewMemory()
	e, labels := m.Load(64)
	if !e.IsZero() {
		t.Errorf("Load of untouched region = %x, want all zero", e.Data)
	}
	if labels != nil {
		t.Errorf("labels = %v, want nil", labels)
	}
}

func TestMemoryLenTracksHighWaterMark(t *testing.T) {
	m := NewMemory()
	m.Store(10, []byte{1, 2, 3}, nil)
	if m.Len() != 13 {
		t.Errorf("Len = %d, want 13", m.Len())
	}
	m.StoreByte(5, 0xff, nil)
	if m.Len() != 13 {
		t.Errorf("Len after a smaller write = %d, want unchanged 13", m.Len())
	}
}
