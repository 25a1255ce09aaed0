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
	"sync"

	"github.com/duoram/duoram/ring"
	"github.com/duoram/duoram/wire"
)

// Subprotocol tags, per spec.md §4.3.
const (
	Tag01 byte = 0x01
	Tag10 byte = 0x10
)

// peerFrame is one message of the peer-exchange framing in spec.md §6:
// [u64 sid][u8 tag][u32 dim][dim x u32].
type peerFrame struct {
	sid uint64
	tag byte
	dim int
	vec ring.Vector
}

func writePeerFrame(conn net.Conn, f peerFrame) error {
	if err := wire.WriteU64(conn, f.sid); err != nil {
		return err
	}
	if err := wire.WriteOp(conn, f.tag); err != nil {
		return err
	}
	if err := wire.WriteU32(conn, uint32(f.dim)); err != nil {
		return err
	}
	return f.vec.WriteTo(conn)
}

func readPeerFrame(conn net.Conn) (peerFrame, error) {
	sid, err := wire.ReadU64(conn)
	if err != nil {
		return peerFrame{}, err
	}
	tag, err := wire.ReadOp(conn)
	if err != nil {
		return peerFrame{}, err
	}
	dim, err := wire.ReadDim(conn)
	if err != nil {
		return peerFrame{}, err
	}
	vec, err := ring.ReadVector(conn, dim)
	if err != nil {
		return peerFrame{}, err
	}
	return peerFrame{sid: sid, tag: tag, dim: dim, vec: vec}, nil
}

// expect validates that a received frame matches the (sid, tag, dim) triple
// the receiver is currently waiting for, per spec.md §4.3's "the receiver
// rejects any message whose (sid, tag, dim) triple does not match what it
// expects for the current step."
func expect(f peerFrame, sid uint64, tag byte, dim int) error {
	if f.sid != sid || f.tag != tag || f.dim != dim {
		return fmt.Errorf("party: peer frame mismatch: got (sid=%d,tag=%#x,dim=%d) want (sid=%d,tag=%#x,dim=%d)",
			f.sid, f.tag, f.dim, sid, tag, dim)
	}
	return nil
}

// delivery is what a newly accepted peer connection hands off to the
// in-flight READ_SECURE goroutine that owns the matching session id, once
// its first (tag 0x01) frame has been read.
type delivery struct {
	conn  net.Conn
	first peerFrame
}

// broker rendezvouses an accepted peer connection (identified only once its
// first frame reveals the session id) with the local READ_SECURE goroutine
// waiting on that same session id. Whichever side arrives first lazily
// creates the buffered channel; the other side consumes and removes it.
type broker struct {
	mu sync.Mutex
	ch map[uint64]chan *delivery
}

func newBroker() *broker {
	return &broker{ch: make(map[uint64]chan *delivery)}
}

func (b *broker) chanFor(sid uint64) chan *delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.ch[sid]
	if !ok {
		c = make(chan *delivery, 1)
		b.ch[sid] = c
	}
	return c
}

func (b *broker) deliver(sid uint64, d *delivery) {
	b.chanFor(sid) <- d
}

func (b *broker) await(sid uint64) *delivery {
	c := b.chanFor(sid)
	d := <-c
	b.mu.Lock()
	delete(b.ch, sid)
	b.mu.Unlock()
	return d
}

// acceptPeerConn handles one inbound peer connection: it reads the first
// frame (always tag 0x01, since the dialing party is always the X-side
// sender for tag 0x01) and hands the connection off to whichever local
// READ_SECURE goroutine is (or will be) waiting for that session id.
func (n *Node) acceptPeerConn(conn net.Conn) {
	f, err := readPeerFrame(conn)
	if err != nil {
		n.logf("party: peer accept: read first frame: %v", err)
		conn.Close()
		return
	}
	if f.tag != Tag01 {
		n.logf("party: peer accept: expected tag 0x01 first, got %#x", f.tag)
		conn.Close()
		return
	}
	n.broker.deliver(f.sid, &delivery{conn: conn, first: f})
}
