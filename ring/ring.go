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

// Package ring implements arithmetic over Z/2^31Z, the fixed power-of-two
// ring every DUORAM share is an element of.
package ring

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Modulus is 2^31. Every Elem is kept in [0, Modulus) with the top bit of its
// 32-bit representation always zero.
const (
	bits    = 31
	Modulus = 1 << bits
	mask    = Modulus - 1
)

// Elem is a single ring element, an integer in [0, 2^31).
type Elem uint32

// Zero and One are the additive and multiplicative identities.
const (
	Zero Elem = 0
	One  Elem = 1
)

func reduce(v uint32) Elem { return Elem(v & mask) }

// Add returns a+b mod 2^31.
func (a Elem) Add(b Elem) Elem { return reduce(uint32(a) + uint32(b)) }

// Sub returns a-b mod 2^31.
func (a Elem) Sub(b Elem) Elem { return reduce(uint32(a) - uint32(b)) }

// Neg returns -a mod 2^31.
func (a Elem) Neg() Elem { return reduce(Modulus - uint32(a&mask)) }

// Mul returns a*b mod 2^31. The product is computed in 64 bits before the
// modular reduction so it never overflows.
func (a Elem) Mul(b Elem) Elem {
	return Elem((uint64(a) * uint64(b)) & mask)
}

// Eq reports whether a and b denote the same ring element.
func (a Elem) Eq(b Elem) bool { return (a & mask) == (b & mask) }

// Inverse returns the multiplicative inverse of a, which exists only when a
// is odd (2^31 is even, so only the odd residues are units). ok is false for
// even a.
func (a Elem) Inverse() (inv Elem, ok bool) {
	if a&1 == 0 {
		return 0, false
	}
	// The units of Z/2^kZ form a group of order 2^(k-1); a^(2^(k-1)-1) is the
	// inverse of a for any odd a, by Euler's theorem for the multiplicative
	// group mod 2^k.
	exp := uint32(Modulus/2 - 1)
	result := Elem(1)
	base := a
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		exp >>= 1
	}
	return result, true
}

// Bytes serializes e as 4 bytes, big-endian, top bit always zero.
func (e Elem) Bytes() [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(e&mask))
	return b
}

// Put writes e's 4-byte big-endian encoding into dst, which must have
// len(dst) >= 4.
func (e Elem) Put(dst []byte) {
	binary.BigEndian.PutUint32(dst, uint32(e&mask))
}

// FromUint32 reduces v into the ring.
func FromUint32(v uint32) Elem { return reduce(v) }

// ReadElem decodes one big-endian 4-byte ring element from r.
func ReadElem(r io.Reader) (Elem, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("ring: read element: %w", err)
	}
	v := binary.BigEndian.Uint32(b[:])
	if v&^uint32(mask) != 0 {
		return 0, fmt.Errorf("ring: element %#x has top bit set", v)
	}
	return Elem(v), nil
}
