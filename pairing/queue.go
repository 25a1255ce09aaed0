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
	"encoding/binary"
	"net"
	"sync"

	"github.com/dchest/siphash"
)

// numShards splits the per-dimension queue across several independently
// locked buckets, the way splitter.go assigns inputs to shards with siphash
// rather than taking a single global lock.
const numShards = 16

// pending is a first-arrived connection for some dimension, parked until a
// second arrival of the same dimension appears or it disconnects.
type pending struct {
	conn net.Conn
}

// queue is the pairing server's only shared mutable state: a sharded map
// from dimension to the connection that is parked waiting for its peer.
type queue struct {
	k0, k1 uint64
	mu     [numShards]sync.Mutex
	slots  [numShards]map[int]*pending
}

func newQueue() *queue {
	q := &queue{k0: 0x9ae16a3b2f90404f, k1: 0xc2b2ae3d27d4eb4f}
	for i := range q.slots {
		q.slots[i] = make(map[int]*pending)
	}
	return q
}

func (q *queue) shardFor(dim int) int {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(dim))
	h := siphash.Hash(q.k0, q.k1, b[:])
	return int(h % numShards)
}

// arrive registers conn as waiting for a peer on dimension dim. If a peer is
// already parked, it is returned (and removed from the queue) and ok is
// true. If the previously parked peer turns out to be dead (its connection
// already closed), it is discarded and conn takes its place in the queue,
// exactly as spec.md §4.2 describes: "a parked socket that drops before
// being matched is removed from the queue on the next attempt."
func (q *queue) arrive(dim int, conn net.Conn) (peer net.Conn, ok bool) {
	shard := q.shardFor(dim)
	q.mu[shard].Lock()
	defer q.mu[shard].Unlock()

	for {
		waiter, found := q.slots[shard][dim]
		if !found {
			q.slots[shard][dim] = &pending{conn: conn}
			return nil, false
		}
		delete(q.slots[shard], dim)
		if probeAlive(waiter.conn) {
			return waiter.conn, true
		}
		// stale entry; loop to either park conn or match the next waiter
		continue
	}
}

// probeAlive reports whether a parked connection is still usable. A parked
// connection never sends anything further, so a zero-byte Write is the
// cheapest liveness probe available without disturbing any buffered bytes:
// writing to an already-closed or reset socket returns an error.
func probeAlive(c net.Conn) bool {
	_, err := c.Write(nil)
	return err == nil
}
