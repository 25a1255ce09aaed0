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

package rkproto

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Reader decodes newline-delimited JSON Envelopes from the control channel.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadEnvelope reads a single line and unmarshals it into an Envelope.
func (rd *Reader) ReadEnvelope() (*Envelope, error) {
	line, err := rd.br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("rkproto: read envelope: %w", err)
	}
	var env Envelope
	if jerr := json.Unmarshal(line, &env); jerr != nil {
		return nil, fmt.Errorf("rkproto: malformed envelope: %w", jerr)
	}
	return &env, nil
}

// WriteEnvelope marshals env and writes it terminated by a single newline.
func WriteEnvelope(w io.Writer, env *Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("rkproto: marshal envelope: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("rkproto: write envelope: %w", err)
	}
	return nil
}
