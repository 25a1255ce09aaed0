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

// Package pairing implements the correlated-randomness helper (spec.md C2):
// it matches two concurrent requests for the same dimension d and hands each
// one half of a fresh Du-Atallah triple.
package pairing

import (
	"encoding/binary"
	"log"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/duoram/duoram/ring"
	"github.com/duoram/duoram/wire"
)

const (
	// OpRequest is the client->server opcode: request a triple for a dim.
	OpRequest = 0x31
	// OpResponse is the server->client opcode carrying a triple half.
	OpResponse = 0x33
)

// Server is the pairing server described in spec.md §4.2.
type Server struct {
	Logger *log.Logger
	q      *queue

	triplesGenerated uint64
}

// NewServer constructs a pairing server ready to Serve.
func NewServer(logger *log.Logger) *Server {
	return &Server{Logger: logger, q: newQueue()}
}

// Stats is a snapshot of the pairing server's lifetime counters, reported by
// the admin HTTP /stats endpoint.
type Stats struct {
	TriplesGenerated uint64 `json:"triplesGenerated"`
}

// Stats returns the server's current counters.
func (s *Server) Stats() Stats {
	return Stats{TriplesGenerated: atomic.LoadUint64(&s.triplesGenerated)}
}

// Serve accepts connections on l until it returns an error (typically
// because l was closed during shutdown). Each connection is handled in its
// own goroutine, matching the "multiple matched pairs may be in flight
// simultaneously" requirement of spec.md §4.2.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func (s *Server) handle(conn net.Conn) {
	op, err := wire.ReadOp(conn)
	if err != nil {
		s.logf("pairing: read op: %v", err)
		conn.Close()
		return
	}
	if op != OpRequest {
		s.logf("pairing: bad op %#x", op)
		conn.Close()
		return
	}
	dim, err := wire.ReadDim(conn)
	if err != nil {
		s.logf("pairing: bad dimension: %v", err)
		conn.Close()
		return
	}

	peer, matched := s.q.arrive(dim, conn)
	if !matched {
		// Parked: no further reads from this socket until a peer shows up.
		// arrive() already recorded conn in the queue; this goroutine's job
		// is done until the second arrival's goroutine drives the match.
		return
	}

	// This goroutine is the second arrival; it generates the triple and
	// delivers both halves.
	s.completePair(peer, conn, dim)
}

func (s *Server) completePair(first, second net.Conn, dim int) {
	h0, h1, err := generateTriple(dim)
	if err != nil {
		s.logf("pairing: generate triple: %v", err)
		first.Close()
		second.Close()
		return
	}
	sid := mintSessionID()
	atomic.AddUint64(&s.triplesGenerated, 1)

	if err := sendHalf(first, dim, sid, 0, h0); err != nil {
		s.logf("pairing: send to first arrival: %v", err)
	}
	first.Close()
	if err := sendHalf(second, dim, sid, 1, h1); err != nil {
		s.logf("pairing: send to second arrival: %v", err)
	}
	second.Close()
}

// mintSessionID derives a 64-bit session id from a fresh UUID's low 8 bytes,
// per spec.md §3 ("64 uniformly random bits, or derived from a strong random
// source").
func mintSessionID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[8:16])
}

func sendHalf(conn net.Conn, dim int, sid uint64, partyIndex int, h Half) error {
	if err := wire.WriteOp(conn, OpResponse); err != nil {
		return err
	}
	if err := wire.WriteU32(conn, uint32(dim)); err != nil {
		return err
	}
	if err := wire.WriteU64(conn, sid); err != nil {
		return err
	}
	if err := h.R.WriteTo(conn); err != nil {
		return err
	}
	var cBuf [4]byte
	h.C.Put(cBuf[:])
	if _, err := conn.Write(cBuf[:]); err != nil {
		return err
	}
	return nil
}

// RequestTriple performs the client side of the pairing protocol: send the
// request header and parse the response. Used by party nodes (C3).
func RequestTriple(conn net.Conn, dim int) (sid uint64, partyIndex int, h Half, err error) {
	if err = wire.WriteOp(conn, OpRequest); err != nil {
		return
	}
	if err = wire.WriteU32(conn, uint32(dim)); err != nil {
		return
	}

	op, err := wire.ReadOp(conn)
	if err != nil {
		return
	}
	if op != OpResponse {
		err = errBadOp(op)
		return
	}
	gotDim, err := wire.ReadDim(conn)
	if err != nil {
		return
	}
	if gotDim != dim {
		err = errDimMismatch(dim, gotDim)
		return
	}
	sid, err = wire.ReadU64(conn)
	if err != nil {
		return
	}
	r, err := ring.ReadVector(conn, dim)
	if err != nil {
		return
	}
	c, err := ring.ReadElem(conn)
	if err != nil {
		return
	}
	h = Half{R: r, C: c}
	// partyIndex isn't carried on the wire explicitly in the response beyond
	// determining which half was sent; callers only need their own half, so
	// it is reported as -1 (unused) to keep the signature stable for future
	// batching, see spec.md §9 Open Question (c).
	return sid, -1, h, nil
}
