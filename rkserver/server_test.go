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

package rkserver

import (
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duoram/duoram/rkclient"
)

func newTestServer(t *testing.T) (addr string, users MapUserStore) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	users = MapUserStore{"alice": HashPassword("correct horse battery staple")}
	srv := NewServer(priv, users, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go srv.Serve(ln)

	return ln.Addr().String(), users
}

// TestS4HelloAckCounterRotation covers spec.md §8 scenario S4.
func TestS4HelloAckCounterRotation(t *testing.T) {
	addr, _ := newTestServer(t)

	c, err := rkclient.Dial(addr, "alice", "correct horse battery staple")
	require.NoError(t, err)
	defer c.Close()
	require.EqualValues(t, 0, c.Counter())

	reply, err := c.Send("hello")
	require.NoError(t, err)
	require.Equal(t, "ACK:hello", reply)
	require.EqualValues(t, 2, c.Counter())
}

// TestWrongPasswordDoesNotAuthenticate covers spec.md §8 property 8.
func TestWrongPasswordDoesNotAuthenticate(t *testing.T) {
	addr, _ := newTestServer(t)

	_, err := rkclient.Dial(addr, "alice", "wrong password")
	require.Error(t, err)
}

// TestUnknownUserDoesNotAuthenticate exercises the same fixed-failure path
// for an unenrolled username.
func TestUnknownUserDoesNotAuthenticate(t *testing.T) {
	addr, _ := newTestServer(t)

	_, err := rkclient.Dial(addr, "mallory", "anything")
	require.Error(t, err)
}

// TestKeyRotationLockstep covers spec.md §8 property 7: after several
// messages each side's rk/counter stay equal, derivable only by replaying
// the exchange from the same starting point.
func TestKeyRotationLockstep(t *testing.T) {
	addr, _ := newTestServer(t)

	c, err := rkclient.Dial(addr, "alice", "correct horse battery staple")
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 5; i++ {
		reply, err := c.Send("ping")
		require.NoError(t, err)
		require.Equal(t, "ACK:ping", reply)
	}
	require.EqualValues(t, 10, c.Counter())
}
