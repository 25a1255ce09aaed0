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

// Package rkclient implements the control-channel client half of spec.md
// §4.5: enrollment, authentication, and sending/receiving rotating-key
// protected messages.
package rkclient

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/duoram/duoram/rkproto"
)

// Client is one authenticated control-channel session.
type Client struct {
	conn    net.Conn
	rd      *rkproto.Reader
	rk      []byte
	counter uint64
}

// Dial connects to addr and performs the full enrollment + authentication
// handshake for username/password, per spec.md §4.5 steps 1-5.
func Dial(addr, username, password string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rkclient: dial %s: %w", addr, err)
	}
	c, err := enroll(conn, username, password)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func enroll(conn net.Conn, username, password string) (*Client, error) {
	rd := rkproto.NewReader(conn)

	if err := rkproto.WriteEnvelope(conn, &rkproto.Envelope{Op: rkproto.OpPub}); err != nil {
		return nil, fmt.Errorf("rkclient: send PUB: %w", err)
	}
	env, err := rd.ReadEnvelope()
	if err != nil {
		return nil, fmt.Errorf("rkclient: read PUB reply: %w", err)
	}
	if env.Op != rkproto.OpPub {
		return nil, fmt.Errorf("rkclient: expected PUB reply, got %s: %s", env.Op, env.Error)
	}
	pemBytes, err := base64.StdEncoding.DecodeString(env.PublicPEMB64)
	if err != nil {
		return nil, fmt.Errorf("rkclient: decode server public key: %w", err)
	}
	pub, err := rkproto.DecodePublicKeyPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("rkclient: parse server public key: %w", err)
	}

	kc := make([]byte, rkproto.RKSize)
	if _, err := io.ReadFull(rand.Reader, kc); err != nil {
		return nil, fmt.Errorf("rkclient: generate K_c: %w", err)
	}
	plain, err := buildEnrollPlaintext(kc, username, hashPassword(password))
	if err != nil {
		return nil, err
	}
	ct, err := rkproto.OAEPEncrypt(pub, plain)
	if err != nil {
		return nil, fmt.Errorf("rkclient: oaep encrypt: %w", err)
	}
	if err := rkproto.WriteEnvelope(conn, &rkproto.Envelope{
		Op:         rkproto.OpEnroll,
		PayloadB64: base64.StdEncoding.EncodeToString(ct),
	}); err != nil {
		return nil, fmt.Errorf("rkclient: send ENROLL: %w", err)
	}

	env, err = rd.ReadEnvelope()
	if err != nil {
		return nil, fmt.Errorf("rkclient: read AUTH reply: %w", err)
	}
	if env.Op != rkproto.OpAuth {
		return nil, fmt.Errorf("rkclient: expected AUTH reply, got %s: %s", env.Op, env.Error)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	if err != nil {
		return nil, fmt.Errorf("rkclient: decode nonce_b64: %w", err)
	}
	ctb, err := base64.StdEncoding.DecodeString(env.CTB64)
	if err != nil {
		return nil, fmt.Errorf("rkclient: decode ct_b64: %w", err)
	}
	body, err := rkproto.OpenAESGCM(kc, nonce, ctb)
	if err != nil {
		return nil, fmt.Errorf("rkclient: open AUTH reply: %w", err)
	}
	if env.OK == nil || !*env.OK {
		return nil, fmt.Errorf("rkclient: authentication failed")
	}
	var success rkproto.AuthSuccess
	if err := json.Unmarshal(body, &success); err != nil {
		return nil, fmt.Errorf("rkclient: unmarshal AuthSuccess: %w", err)
	}

	return &Client{conn: conn, rd: rd, rk: success.RK, counter: success.Counter}, nil
}

// buildEnrollPlaintext renders K_c ‖ len8(username) ‖ username ‖
// len8(hex_sha256_password) ‖ hex_sha256_password, per spec.md §4.5 step 2.
func buildEnrollPlaintext(kc []byte, username, hexPasswordHash string) ([]byte, error) {
	if len(username) > 255 || len(hexPasswordHash) > 255 {
		return nil, fmt.Errorf("rkclient: username or password hash exceeds 255 bytes")
	}
	buf := make([]byte, 0, len(kc)+2+len(username)+len(hexPasswordHash))
	buf = append(buf, kc...)
	buf = append(buf, byte(len(username)))
	buf = append(buf, username...)
	buf = append(buf, byte(len(hexPasswordHash)))
	buf = append(buf, hexPasswordHash...)
	return buf, nil
}

// Send transmits payload as an RK_MSG and returns the server's decrypted
// ACK response payload, ratcheting the session key after both send and
// receive per spec.md §4.5's counter rule.
func (c *Client) Send(payload string) (string, error) {
	msg := rkproto.RKMessage{Payload: payload, Counter: c.counter}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("rkclient: marshal RKMessage: %w", err)
	}
	nonce, ct, err := rkproto.SealAESGCM(c.rk, body)
	if err != nil {
		return "", fmt.Errorf("rkclient: seal RK_MSG: %w", err)
	}
	if err := rkproto.WriteEnvelope(c.conn, &rkproto.Envelope{
		Op:       rkproto.OpRKMsg,
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		CTB64:    base64.StdEncoding.EncodeToString(ct),
	}); err != nil {
		return "", fmt.Errorf("rkclient: send RK_MSG: %w", err)
	}
	c.advance()

	env, err := c.rd.ReadEnvelope()
	if err != nil {
		return "", fmt.Errorf("rkclient: read RK_MSG reply: %w", err)
	}
	if env.Op != rkproto.OpRKMsg {
		return "", fmt.Errorf("rkclient: expected RK_MSG reply, got %s: %s", env.Op, env.Error)
	}
	rnonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	if err != nil {
		return "", fmt.Errorf("rkclient: decode reply nonce_b64: %w", err)
	}
	rct, err := base64.StdEncoding.DecodeString(env.CTB64)
	if err != nil {
		return "", fmt.Errorf("rkclient: decode reply ct_b64: %w", err)
	}
	rbody, err := rkproto.OpenAESGCM(c.rk, rnonce, rct)
	if err != nil {
		return "", fmt.Errorf("rkclient: open RK_MSG reply: %w", err)
	}
	var reply rkproto.RKMessage
	if err := json.Unmarshal(rbody, &reply); err != nil {
		return "", fmt.Errorf("rkclient: unmarshal reply RKMessage: %w", err)
	}
	if reply.Counter != c.counter {
		return "", fmt.Errorf("rkclient: counter mismatch: have %d, got %d", c.counter, reply.Counter)
	}
	c.advance()

	return reply.Payload, nil
}

// advance ratchets the client's rotating key forward by one step.
func (c *Client) advance() {
	c.rk = rkproto.Ratchet(c.rk, c.counter)
	c.counter++
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Counter reports the session's current counter, for tests.
func (c *Client) Counter() uint64 {
	return c.counter
}

// hashPassword returns the hex-encoded SHA-256 digest exchanged in the
// enrollment envelope and compared against the server's stored record.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%x", sum)
}
