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
	"net"

	"github.com/duoram/duoram/ring"
	"github.com/duoram/duoram/wire"
)

const replyOK = "OK"

// ServeClients runs the client-facing accept loop.
func (n *Node) ServeClients(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go n.handleClient(conn)
	}
}

func (n *Node) handleClient(conn net.Conn) {
	defer conn.Close()

	op, err := wire.ReadOp(conn)
	if err != nil {
		n.logf("party: client: read op: %v", err)
		return
	}

	dim, err := wire.ReadDim(conn)
	if err != nil {
		n.logf("party: client: read dim: %v", err)
		return
	}
	if dim != n.cfg.Rows {
		n.logf("party: client: dimension mismatch: have %d rows, got %d", n.cfg.Rows, dim)
		return
	}

	vec, err := ring.ReadVector(conn, dim)
	if err != nil {
		n.logf("party: client: read vector: %v", err)
		return
	}

	switch op {
	case wire.OpWriteVec:
		if err := n.write(vec); err != nil {
			n.logf("party: client: write: %v", err)
			return
		}
		if _, err := conn.Write([]byte(replyOK)); err != nil {
			n.logf("party: client: write ack: %v", err)
		}

	case wire.OpReadSecure:
		share, err := n.ReadSecure(vec)
		if err != nil {
			n.logf("party: client: read secure: %v", err)
			return
		}
		var b [4]byte
		share.Put(b[:])
		if _, err := conn.Write(b[:]); err != nil {
			n.logf("party: client: write reply: %v", err)
		}

	default:
		n.logf("party: client: bad op %#x", op)
	}
}
