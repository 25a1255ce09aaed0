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
	"encoding/base64"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duoram/duoram/rkproto"
)

// rawClient drives the wire protocol directly, with no key-rotation
// bookkeeping of its own, so tests can replay a captured envelope verbatim.
type rawClient struct {
	conn net.Conn
	rd   *rkproto.Reader
}

func dialRaw(t *testing.T, addr, username, password string) (*rawClient, []byte, uint64) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	rd := rkproto.NewReader(conn)

	require.NoError(t, rkproto.WriteEnvelope(conn, &rkproto.Envelope{Op: rkproto.OpPub}))
	env, err := rd.ReadEnvelope()
	require.NoError(t, err)
	pemBytes, err := base64.StdEncoding.DecodeString(env.PublicPEMB64)
	require.NoError(t, err)
	pub, err := rkproto.DecodePublicKeyPEM(pemBytes)
	require.NoError(t, err)

	kc := make([]byte, rkproto.RKSize)
	_, err = rand.Read(kc)
	require.NoError(t, err)

	plain := append([]byte{}, kc...)
	plain = append(plain, byte(len(username)))
	plain = append(plain, username...)
	hash := HashPassword(password)
	plain = append(plain, byte(len(hash)))
	plain = append(plain, hash...)

	ct, err := rkproto.OAEPEncrypt(pub, plain)
	require.NoError(t, err)
	require.NoError(t, rkproto.WriteEnvelope(conn, &rkproto.Envelope{
		Op:         rkproto.OpEnroll,
		PayloadB64: base64.StdEncoding.EncodeToString(ct),
	}))

	env, err = rd.ReadEnvelope()
	require.NoError(t, err)
	nonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	require.NoError(t, err)
	ctb, err := base64.StdEncoding.DecodeString(env.CTB64)
	require.NoError(t, err)
	body, err := rkproto.OpenAESGCM(kc, nonce, ctb)
	require.NoError(t, err)
	require.True(t, env.OK != nil && *env.OK)

	var success rkproto.AuthSuccess
	require.NoError(t, json.Unmarshal(body, &success))

	return &rawClient{conn: conn, rd: rd}, success.RK, success.Counter
}

func sealMsg(t *testing.T, rk []byte, payload string, counter uint64) *rkproto.Envelope {
	t.Helper()
	body, err := json.Marshal(rkproto.RKMessage{Payload: payload, Counter: counter})
	require.NoError(t, err)
	nonce, ct, err := rkproto.SealAESGCM(rk, body)
	require.NoError(t, err)
	return &rkproto.Envelope{
		Op:       rkproto.OpRKMsg,
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		CTB64:    base64.StdEncoding.EncodeToString(ct),
	}
}

// TestS5ReplayRejected covers spec.md §8 scenario S5 and property 6: a
// resent RK_MSG fails once the server's rk/counter have already ratcheted
// past the point the replayed message was encrypted under.
func TestS5ReplayRejected(t *testing.T) {
	addr, _ := newTestServer(t)

	raw, rk, counter := dialRaw(t, addr, "alice", "correct horse battery staple")
	defer raw.conn.Close()

	env := sealMsg(t, rk, "hello", counter)

	require.NoError(t, rkproto.WriteEnvelope(raw.conn, env))
	reply, err := raw.rd.ReadEnvelope()
	require.NoError(t, err)
	require.Empty(t, reply.Error)

	// Replay the identical envelope: the server has already ratcheted past
	// this counter, so authentication or the counter check must fail.
	require.NoError(t, rkproto.WriteEnvelope(raw.conn, env))
	reply2, err := raw.rd.ReadEnvelope()
	require.NoError(t, err)
	require.NotEmpty(t, reply2.Error)
}
