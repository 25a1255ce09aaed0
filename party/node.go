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

// Package party implements a DUORAM party node (spec.md C3): it holds one
// additive share of the logical database and answers WRITE_VEC and
// READ_SECURE requests on its client-facing port, running the Du-Atallah
// online protocol against its peer to answer reads obliviously.
package party

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/duoram/duoram/ring"
)

// Role identifies which of the two non-colluding parties a Node is.
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// Config configures a Node.
type Config struct {
	Role Role
	Rows int

	// PairingAddr is the pairing server's listen address.
	PairingAddr string

	// PeerListenAddr is the address this node's peer port listens on.
	// Role B accepts the peer connection that drives each READ_SECURE;
	// Role A dials PeerDialAddr instead; the dial direction is fixed by role.
	PeerListenAddr string

	// PeerDialAddr is the peer's peer-listen address, used only by role A.
	PeerDialAddr string

	Logger *log.Logger
}

// Node is a party node holding one additive share vector.
type Node struct {
	cfg Config

	mu    sync.RWMutex
	share ring.Vector

	broker *broker

	writes       uint64
	securedReads uint64
}

// Stats is a snapshot of a Node's lifetime counters, reported by the admin
// HTTP /stats endpoint.
type Stats struct {
	Role         Role   `json:"role"`
	Rows         int    `json:"rows"`
	Writes       uint64 `json:"writes"`
	SecuredReads uint64 `json:"securedReads"`
}

// Stats returns the Node's current counters.
func (n *Node) Stats() Stats {
	return Stats{
		Role:         n.cfg.Role,
		Rows:         n.cfg.Rows,
		Writes:       atomic.LoadUint64(&n.writes),
		SecuredReads: atomic.LoadUint64(&n.securedReads),
	}
}

// NewNode constructs a Node with an all-zero share vector of length
// cfg.Rows, per spec.md §3 ("created when the party boots, all zeros").
func NewNode(cfg Config) (*Node, error) {
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("party: rows must be positive, got %d", cfg.Rows)
	}
	if cfg.Role != RoleA && cfg.Role != RoleB {
		return nil, fmt.Errorf("party: role must be A or B, got %q", cfg.Role)
	}
	return &Node{
		cfg:    cfg,
		share:  ring.NewVector(cfg.Rows),
		broker: newBroker(),
	}, nil
}

func (n *Node) logf(format string, args ...interface{}) {
	if n.cfg.Logger != nil {
		n.cfg.Logger.Printf(format, args...)
	}
}

// Rows returns the configured row count.
func (n *Node) Rows() int { return n.cfg.Rows }

// write applies a local additive update: S_P[i] += u[i], per spec.md §4.3
// WRITE_VEC semantics. Purely local; serialized against reads and other
// writes by the Node's read-write lock.
func (n *Node) write(u ring.Vector) error {
	if len(u) != n.cfg.Rows {
		return fmt.Errorf("party: dimension mismatch: have %d rows, got %d", n.cfg.Rows, len(u))
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.share.AddInPlace(u)
	atomic.AddUint64(&n.writes, 1)
	return nil
}

// snapshot returns a defensive copy of the current share vector, read-locked
// so it cannot observe a write's intermediate state.
func (n *Node) snapshot() ring.Vector {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.share.Clone()
}

// ServePeer runs the peer-facing accept loop (used by role B; see Config).
func (n *Node) ServePeer(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go n.acceptPeerConn(conn)
	}
}
