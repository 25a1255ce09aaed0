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
	"crypto/rand"
	"fmt"

	"github.com/duoram/duoram/ring"
)

// Half is one party's half of a Du-Atallah triple for a dimension d: a mask
// vector R_P and a scalar C_P such that C_0 + C_1 = <R_0, R_1>. This is the
// correlated randomness that lets the online inner-product subprotocol
// (party/duatallah.go) mask one party's private vector against the other's
// without either side learning the other's input, per spec.md §3.
type Half struct {
	R ring.Vector
	C ring.Elem
}

// generateTriple samples a fresh Du-Atallah triple of dimension d and splits
// it into two halves whose mask vectors are independently uniform and whose
// scalars sum to the cross product of those two vectors, per spec.md §3
// ("Du-Atallah triple for dimension d").
func generateTriple(d int) (h0, h1 Half, err error) {
	r0, err := ring.CryptoRandomVector(d)
	if err != nil {
		return h0, h1, fmt.Errorf("pairing: sample r0: %w", err)
	}
	r1, err := ring.CryptoRandomVector(d)
	if err != nil {
		return h0, h1, fmt.Errorf("pairing: sample r1: %w", err)
	}

	c := r0.Dot(r1)

	c0Vec, err := ring.RandomVector(1, rand.Reader)
	if err != nil {
		return h0, h1, fmt.Errorf("pairing: sample c0: %w", err)
	}
	c0 := c0Vec[0]
	c1 := c.Sub(c0)

	h0 = Half{R: r0, C: c0}
	h1 = Half{R: r1, C: c1}
	return h0, h1, nil
}
