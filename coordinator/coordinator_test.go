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

package coordinator

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duoram/duoram/pairing"
	"github.com/duoram/duoram/party"
	"github.com/duoram/duoram/ring"
)

// harness stands up a pairing server and both party nodes, wired exactly as
// spec.md §6 describes, and returns a ready-to-use Coordinator.
type harness struct {
	coord *Coordinator
}

func newHarness(t *testing.T, rows int) *harness {
	t.Helper()

	pairingLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pairingLn.Close() })
	ps := pairing.NewServer(nil)
	go ps.Serve(pairingLn)

	peerLnB, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { peerLnB.Close() })

	nodeA, err := party.NewNode(party.Config{
		Role:           party.RoleA,
		Rows:           rows,
		PairingAddr:    pairingLn.Addr().String(),
		PeerDialAddr:   peerLnB.Addr().String(),
	})
	require.NoError(t, err)
	nodeB, err := party.NewNode(party.Config{
		Role:           party.RoleB,
		Rows:           rows,
		PairingAddr:    pairingLn.Addr().String(),
		PeerListenAddr: peerLnB.Addr().String(),
	})
	require.NoError(t, err)

	go nodeB.ServePeer(peerLnB)

	clientLnA, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { clientLnA.Close() })
	clientLnB, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { clientLnB.Close() })

	go nodeA.ServeClients(clientLnA)
	go nodeB.ServeClients(clientLnB)

	return &harness{coord: New(clientLnA.Addr().String(), clientLnB.Addr().String())}
}

// TestS1RoundTrip covers spec.md §8 scenario S1.
func TestS1RoundTrip(t *testing.T) {
	h := newHarness(t, 8)
	require.NoError(t, h.coord.Write(8, 3, ring.Elem(42)))
	got, err := h.coord.Read(8, 3)
	require.NoError(t, err)
	require.True(t, got.Eq(ring.Elem(42)))

	got0, err := h.coord.Read(8, 0)
	require.NoError(t, err)
	require.True(t, got0.Eq(ring.Zero))
}

// TestS2Wraparound covers spec.md §8 scenario S2.
func TestS2Wraparound(t *testing.T) {
	h := newHarness(t, 4)
	require.NoError(t, h.coord.Write(4, 1, ring.Elem(ring.Modulus-1)))
	require.NoError(t, h.coord.Write(4, 1, ring.Elem(1)))
	got, err := h.coord.Read(4, 1)
	require.NoError(t, err)
	require.True(t, got.Eq(ring.Zero))
}

// TestS3Accumulate covers spec.md §8 scenario S3.
func TestS3Accumulate(t *testing.T) {
	h := newHarness(t, 16)
	require.NoError(t, h.coord.Write(16, 7, ring.Elem(12345)))
	require.NoError(t, h.coord.Write(16, 7, ring.Elem(10)))
	got, err := h.coord.Read(16, 7)
	require.NoError(t, err)
	require.True(t, got.Eq(ring.Elem(12355)))
}

// TestIndexOutOfRangeFailsWithoutNetwork covers spec.md §8 property 9.
func TestIndexOutOfRangeFailsWithoutNetwork(t *testing.T) {
	h := newHarness(t, 4)
	_, err := h.coord.Read(4, 4)
	require.Error(t, err)
	err = h.coord.Write(4, -1, ring.One)
	require.Error(t, err)
}

// TestS6ConcurrentReadsDisambiguateBySessionID covers spec.md §8 scenario S6.
func TestS6ConcurrentReadsDisambiguateBySessionID(t *testing.T) {
	h := newHarness(t, 8)
	require.NoError(t, h.coord.Write(8, 2, ring.Elem(7)))
	require.NoError(t, h.coord.Write(8, 5, ring.Elem(9)))

	var wg sync.WaitGroup
	var got2, got5 ring.Elem
	var err2, err5 error
	wg.Add(2)
	go func() {
		defer wg.Done()
		got2, err2 = h.coord.Read(8, 2)
	}()
	go func() {
		defer wg.Done()
		got5, err5 = h.coord.Read(8, 5)
	}()
	wg.Wait()

	require.NoError(t, err2)
	require.NoError(t, err5)
	require.True(t, got2.Eq(ring.Elem(7)))
	require.True(t, got5.Eq(ring.Elem(9)))
}
