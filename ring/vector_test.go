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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVectorDotAndShares(t *testing.T) {
	x := Vector{1, 2, 3, 4}
	y := Vector{5, 6, 7, 8}
	// <x,y> = 5+12+21+32 = 70
	require.True(t, x.Dot(y).Eq(Elem(70)))
}

func TestStandardBasisOutOfRange(t *testing.T) {
	_, err := StandardBasis(4, 4, One)
	require.Error(t, err)
	_, err = StandardBasis(4, -1, One)
	require.Error(t, err)
}

func TestVectorAddSubRoundTrip(t *testing.T) {
	v, err := CryptoRandomVector(8)
	require.NoError(t, err)
	w, err := CryptoRandomVector(8)
	require.NoError(t, err)
	sum := v.Add(w)
	require.True(t, sum.Sub(w).Eq(v))
}

func TestVectorWireRoundTrip(t *testing.T) {
	v, err := CryptoRandomVector(16)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, v.WriteTo(&buf))
	got, err := ReadVector(&buf, 16)
	require.NoError(t, err)
	require.True(t, got.Eq(v))
}

func TestAdditiveSharesReconstructInput(t *testing.T) {
	x, err := CryptoRandomVector(5)
	require.NoError(t, err)
	f, err := CryptoRandomVector(5)
	require.NoError(t, err)
	share0 := x.Sub(f)
	share1 := f
	require.True(t, share0.Add(share1).Eq(x))
}
