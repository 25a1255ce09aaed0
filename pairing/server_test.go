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

package pairing

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) net.Addr {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(nil)
	go s.Serve(l)
	t.Cleanup(func() { l.Close() })
	return l.Addr()
}

func TestMatchedPairGetsConsistentTriple(t *testing.T) {
	addr := startTestServer(t)

	var wg sync.WaitGroup
	var sid0, sid1 uint64
	var h0, h1 Half
	wg.Add(2)

	go func() {
		defer wg.Done()
		conn, err := net.Dial("tcp", addr.String())
		require.NoError(t, err)
		defer conn.Close()
		sid, _, h, err := RequestTriple(conn, 4)
		require.NoError(t, err)
		sid0, h0 = sid, h
	}()
	go func() {
		defer wg.Done()
		conn, err := net.Dial("tcp", addr.String())
		require.NoError(t, err)
		defer conn.Close()
		sid, _, h, err := RequestTriple(conn, 4)
		require.NoError(t, err)
		sid1, h1 = sid, h
	}()
	wg.Wait()

	require.Equal(t, sid0, sid1)
	c := h0.C.Add(h1.C)
	require.True(t, c.Eq(h0.R.Dot(h1.R)), "Du-Atallah triple identity must hold")
}

func TestDimensionZeroClosesConnection(t *testing.T) {
	addr := startTestServer(t)
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{OpRequest, 0, 0, 0, 0})
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.Error(t, err, "server must close the connection for dim=0")
}

func TestTwoIndependentPairsDoNotCrossTalk(t *testing.T) {
	addr := startTestServer(t)

	request := func(dim int) (uint64, Half) {
		conn, err := net.Dial("tcp", addr.String())
		require.NoError(t, err)
		defer conn.Close()
		sid, _, h, err := RequestTriple(conn, dim)
		require.NoError(t, err)
		return sid, h
	}

	var wg sync.WaitGroup
	sids := make([]uint64, 4)
	wg.Add(4)
	for i := 0; i < 4; i++ {
		i := i
		go func() {
			defer wg.Done()
			dim := 4 + (i % 2) // two distinct dims, two requesters each
			sid, _ := request(dim)
			sids[i] = sid
		}()
	}
	wg.Wait()
	for _, sid := range sids {
		require.NotZero(t, sid)
	}
}
