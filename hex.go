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
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedHex is a tier-1 input error (spec.md §7): it is the only kind
// of failure ContractInfo and its wrappers ever surface to the caller,
// always before any VM is constructed.
type ErrMalformedHex struct {
	Reason string
}

func (e *ErrMalformedHex) Error() string {
	return "malformed bytecode input: " + e.Reason
}

// decodeCode accepts either raw bytecode ([]byte) or a hex string (optional
// `0x`/`0X` prefix, case-insensitive), per spec.md §6's input format — the
// same bytes-or-string duality the original Python library's `code: bytes |
// str` parameter expresses, carried into Go via a type switch rather than a
// byte-sniffing heuristic, since "600160" is both valid raw bytecode and a
// valid hex string and nothing about the bytes themselves disambiguates it.
func decodeCode(code any) ([]byte, error) {
	switch v := code.(type) {
	case []byte:
		return v, nil
	case string:
		s := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, errors.Wrap(&ErrMalformedHex{Reason: err.Error()}, "decode bytecode hex")
		}
		return raw, nil
	default:
		return nil, &ErrMalformedHex{Reason: "code must be []byte or string"}
	}
}
