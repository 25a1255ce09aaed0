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

// Package coordinator implements the DUORAM client (spec.md C4): it splits
// a logical one-hot request into two additive share vectors, dispatches them
// to the two party nodes concurrently, and reassembles their replies.
package coordinator

import (
	"fmt"
	"net"
	"sync"

	"github.com/duoram/duoram/ring"
	"github.com/duoram/duoram/wire"
)

// Coordinator talks to the two party nodes' client-facing ports.
type Coordinator struct {
	AddrA string
	AddrB string
}

// New returns a Coordinator pointed at the two parties' client-facing
// addresses.
func New(addrA, addrB string) *Coordinator {
	return &Coordinator{AddrA: addrA, AddrB: addrB}
}

// split builds e (scaled standard basis at idx) and returns additive shares
// (share0, share1) summing to e, per spec.md §4.4.
func split(dim, idx int, val ring.Elem) (share0, share1 ring.Vector, err error) {
	e, err := ring.StandardBasis(dim, idx, val)
	if err != nil {
		return nil, nil, err
	}
	f, err := ring.CryptoRandomVector(dim)
	if err != nil {
		return nil, nil, fmt.Errorf("coordinator: sample random mask: %w", err)
	}
	return e.Sub(f), f, nil
}

// Read performs spec.md §4.4's READ: send share0/share1 to A/B concurrently,
// sum the two returned shares.
func (c *Coordinator) Read(dim, idx int) (ring.Elem, error) {
	if idx < 0 || idx >= dim {
		return 0, fmt.Errorf("coordinator: index %d out of range [0,%d)", idx, dim)
	}
	share0, share1, err := split(dim, idx, ring.One)
	if err != nil {
		return 0, err
	}

	var s0, s1 ring.Elem
	var e0, e1 error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s0, e0 = readFromParty(c.AddrA, dim, share0)
	}()
	go func() {
		defer wg.Done()
		s1, e1 = readFromParty(c.AddrB, dim, share1)
	}()
	wg.Wait()

	if e0 != nil {
		return 0, fmt.Errorf("coordinator: party A: %w", e0)
	}
	if e1 != nil {
		return 0, fmt.Errorf("coordinator: party B: %w", e1)
	}
	return s0.Add(s1), nil
}

// Write performs spec.md §4.4's WRITE: send share0/share1 to A/B
// concurrently, await both OK acknowledgements. No rollback is attempted if
// one side fails; see spec.md §9 "Write consistency across parties".
func (c *Coordinator) Write(dim, idx int, val ring.Elem) error {
	if idx < 0 || idx >= dim {
		return fmt.Errorf("coordinator: index %d out of range [0,%d)", idx, dim)
	}
	share0, share1, err := split(dim, idx, val)
	if err != nil {
		return err
	}

	var e0, e1 error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e0 = writeToParty(c.AddrA, dim, share0)
	}()
	go func() {
		defer wg.Done()
		e1 = writeToParty(c.AddrB, dim, share1)
	}()
	wg.Wait()

	if e0 != nil {
		return fmt.Errorf("coordinator: party A write failed: %w", e0)
	}
	if e1 != nil {
		return fmt.Errorf("coordinator: party B write failed: %w", e1)
	}
	return nil
}

func dialParty(op byte, addr string, dim int, share ring.Vector) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := wire.WriteOp(conn, op); err != nil {
		conn.Close()
		return nil, err
	}
	if err := wire.WriteU32(conn, uint32(dim)); err != nil {
		conn.Close()
		return nil, err
	}
	if err := share.WriteTo(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func readFromParty(addr string, dim int, share ring.Vector) (ring.Elem, error) {
	conn, err := dialParty(wire.OpReadSecure, addr, dim, share)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return ring.ReadElem(conn)
}

func writeToParty(addr string, dim int, share ring.Vector) error {
	conn, err := dialParty(wire.OpWriteVec, addr, dim, share)
	if err != nil {
		return err
	}
	defer conn.Close()
	buf := make([]byte, 2)
	if _, err := conn.Read(buf); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if string(buf) != "OK" {
		return fmt.Errorf("unexpected ack %q", buf)
	}
	return nil
}
