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

package ring

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddSubNeg(t *testing.T) {
	a := Elem(Modulus - 1)
	b := Elem(2)
	require.True(t, a.Add(b).Eq(Elem(1)))
	require.True(t, b.Sub(a).Eq(Elem(3)))
	require.True(t, Zero.Sub(a).Eq(a.Neg()))
}

func TestMulOverflowSafe(t *testing.T) {
	a := Elem(Modulus - 1)
	got := a.Mul(a)
	want := Elem(uint64(a) * uint64(a) % Modulus)
	require.True(t, got.Eq(want))
}

func TestInverseOddOnly(t *testing.T) {
	_, ok := Elem(4).Inverse()
	require.False(t, ok)

	for _, v := range []uint32{1, 3, 5, 12345, Modulus - 1} {
		e := Elem(v)
		inv, ok := e.Inverse()
		require.True(t, ok)
		require.True(t, e.Mul(inv).Eq(One), "v=%d", v)
	}
}

func TestSerializationRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		e := Elem(rng.Uint32() & mask)
		b := e.Bytes()
		got, err := ReadElem(bytes.NewReader(b[:]))
		require.NoError(t, err)
		require.True(t, got.Eq(e))
	}
}

func TestReadElemRejectsTopBit(t *testing.T) {
	var b [4]byte
	b[0] = 0x80
	_, err := ReadElem(bytes.NewReader(b[:]))
	require.Error(t, err)
}
