// Copyright (C) 2024 DUORAM Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package wire holds the byte-level framing helpers shared by the pairing
// server, party nodes and coordinator, per the wire protocols of spec.md §6.
// All multi-byte integers are big-endian.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxDim bounds the dimension accepted from the wire so a hostile or buggy
// peer can't force an unbounded allocation.
const MaxDim = 1 << 24

// Party client-facing opcodes, per spec.md §4.3/§6.
const (
	OpWriteVec   = 0x40
	OpReadSecure = 0x41
)

// ReadOp reads a single opcode byte.
func ReadOp(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("wire: read op: %w", err)
	}
	return b[0], nil
}

// WriteOp writes a single opcode byte.
func WriteOp(w io.Writer, op byte) error {
	_, err := w.Write([]byte{op})
	return err
}

// ReadU32 reads a big-endian uint32 with no range check; use ReadDim to
// decode a dimension field, which also enforces MaxDim.
func ReadU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("wire: read u32: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// WriteU32 writes v as 4 big-endian bytes.
func WriteU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadDim reads a dimension field and validates it is in (0, MaxDim].
func ReadDim(r io.Reader) (int, error) {
	v, err := ReadU32(r)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("wire: dimension is zero")
	}
	if v > MaxDim {
		return 0, fmt.Errorf("wire: dimension %d exceeds maximum %d", v, MaxDim)
	}
	return int(v), nil
}

// ReadU64 reads a big-endian uint64.
func ReadU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("wire: read u64: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// WriteU64 writes v as 8 big-endian bytes.
func WriteU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}
