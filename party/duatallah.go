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

package party

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/duoram/duoram/pairing"
	"github.com/duoram/duoram/ring"
)

// xSideShare computes s = -<R, v> + C, the X-side's share of <x,y> in the
// Du-Atallah online inner-product subprotocol (spec.md §4.3), given the
// peer's reply v and this party's own half of the triple.
func xSideShare(v ring.Vector, half pairing.Half) ring.Elem {
	return half.R.Dot(v).Neg().Add(half.C)
}

// ySideShare computes s = <u,v> - <u,R> + C, the Y-side's share, given the
// received u, this party's own reply v, and its half of the triple.
func ySideShare(u, v ring.Vector, half pairing.Half) ring.Elem {
	return u.Dot(v).Add(u.Dot(half.R).Neg()).Add(half.C)
}

// runAsX plays the X-side of one tag of the subprotocol: send u = x+R, then
// receive v and return this party's share.
func runAsX(conn net.Conn, sid uint64, tag byte, dim int, x ring.Vector, half pairing.Half) (ring.Elem, error) {
	u := x.Add(half.R)
	if err := writePeerFrame(conn, peerFrame{sid: sid, tag: tag, dim: dim, vec: u}); err != nil {
		return 0, fmt.Errorf("party: send tag %#x: %w", tag, err)
	}
	f, err := readPeerFrame(conn)
	if err != nil {
		return 0, fmt.Errorf("party: receive tag %#x reply: %w", tag, err)
	}
	if err := expect(f, sid, tag, dim); err != nil {
		return 0, err
	}
	return xSideShare(f.vec, half), nil
}

// runAsY plays the Y-side of one tag: receive u (possibly already delivered
// as first), then send v = y+R and return this party's share.
func runAsY(conn net.Conn, sid uint64, tag byte, dim int, y ring.Vector, half pairing.Half, first *peerFrame) (ring.Elem, error) {
	var f peerFrame
	var err error
	if first != nil {
		f = *first
	} else {
		f, err = readPeerFrame(conn)
		if err != nil {
			return 0, fmt.Errorf("party: receive tag %#x: %w", tag, err)
		}
	}
	if err := expect(f, sid, tag, dim); err != nil {
		return 0, err
	}
	u := f.vec
	v := y.Add(half.R)
	if err := writePeerFrame(conn, peerFrame{sid: sid, tag: tag, dim: dim, vec: v}); err != nil {
		return 0, fmt.Errorf("party: send tag %#x reply: %w", tag, err)
	}
	return ySideShare(u, v, half), nil
}

// fetchTriple dials the pairing server and requests a fresh triple for dim.
func fetchTriple(pairingAddr string, dim int) (uint64, pairing.Half, error) {
	pconn, err := net.Dial("tcp", pairingAddr)
	if err != nil {
		return 0, pairing.Half{}, fmt.Errorf("party: dial pairing server: %w", err)
	}
	defer pconn.Close()
	sid, _, half, err := pairing.RequestTriple(pconn, dim)
	if err != nil {
		return 0, pairing.Half{}, fmt.Errorf("party: fetch triple: %w", err)
	}
	return sid, half, nil
}

// ReadSecure implements spec.md §4.3's READ_SECURE: given this party's share
// of the selector, it runs the Du-Atallah online protocol against its peer
// and returns its additive share of <S, e>. The local share vector is never
// mutated by a read.
//
// Each of the two subprotocol tags uses its own independently-correlated
// triple: tag 0x01 always has party A playing the X-side (contributing S_A)
// and party B playing the Y-side (contributing e_B), while tag 0x10 swaps
// those roles. ReadSecure fetches two triples — one per tag — so that no
// triple half's mask vector masks more than one outgoing vector; reusing one
// triple across both tags would mask each party's two sent vectors with the
// same R.
func (n *Node) ReadSecure(selectorShare ring.Vector) (ring.Elem, error) {
	dim := n.cfg.Rows
	if len(selectorShare) != dim {
		return 0, fmt.Errorf("party: dimension mismatch: have %d rows, got %d", dim, len(selectorShare))
	}

	sid, half01, err := fetchTriple(n.cfg.PairingAddr, dim)
	if err != nil {
		return 0, err
	}
	_, half10, err := fetchTriple(n.cfg.PairingAddr, dim)
	if err != nil {
		return 0, err
	}

	localShare := n.snapshot()
	self := localShare.Dot(selectorShare)

	var z01, z10 ring.Elem
	switch n.cfg.Role {
	case RoleA:
		conn, err := net.Dial("tcp", n.cfg.PeerDialAddr)
		if err != nil {
			return 0, fmt.Errorf("party: dial peer: %w", err)
		}
		defer conn.Close()

		z01, err = runAsX(conn, sid, Tag01, dim, localShare, half01)
		if err != nil {
			return 0, err
		}
		z10, err = runAsY(conn, sid, Tag10, dim, selectorShare, half10, nil)
		if err != nil {
			return 0, err
		}

	case RoleB:
		d := n.broker.await(sid)
		defer d.conn.Close()

		z01, err = runAsY(d.conn, sid, Tag01, dim, selectorShare, half01, &d.first)
		if err != nil {
			return 0, err
		}
		z10, err = runAsX(d.conn, sid, Tag10, dim, localShare, half10)
		if err != nil {
			return 0, err
		}

	default:
		return 0, fmt.Errorf("party: unknown role %q", n.cfg.Role)
	}

	atomic.AddUint64(&n.securedReads, 1)
	return self.Add(z01).Add(z10), nil
}
