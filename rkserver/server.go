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

// Package rkserver implements the control-channel server half of spec.md
// §4.5 (component C5): enrollment, password authentication, and the
// rotating-key authenticated message loop.
package rkserver

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync/atomic"

	"github.com/duoram/duoram/rkproto"
)

// UserStore looks up the hex-encoded SHA-256 password digest for username.
// The boolean reports whether the user is known at all.
type UserStore interface {
	Lookup(username string) (hexPasswordHash string, ok bool)
}

// MapUserStore is an in-memory UserStore, per spec.md §4's explicit scope
// note that enrollment-database persistence is an external collaborator.
type MapUserStore map[string]string

// Lookup implements UserStore.
func (m MapUserStore) Lookup(username string) (string, bool) {
	h, ok := m[username]
	return h, ok
}

// Server is the rotating-key control-channel listener.
type Server struct {
	Logger *log.Logger
	Users  UserStore
	priv   *rsa.PrivateKey
	pubPEM []byte

	authSuccesses uint64
	authFailures  uint64
}

// Stats is a snapshot of the control server's lifetime counters, reported by
// the admin HTTP /stats endpoint.
type Stats struct {
	AuthSuccesses uint64 `json:"authSuccesses"`
	AuthFailures  uint64 `json:"authFailures"`
}

// Stats returns the server's current counters.
func (s *Server) Stats() Stats {
	return Stats{
		AuthSuccesses: atomic.LoadUint64(&s.authSuccesses),
		AuthFailures:  atomic.LoadUint64(&s.authFailures),
	}
}

// NewServer builds a Server with the given RSA key pair and user table.
func NewServer(priv *rsa.PrivateKey, users UserStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "rkserver: ", log.LstdFlags)
	}
	return &Server{
		Logger: logger,
		Users:  users,
		priv:   priv,
		pubPEM: rkproto.EncodePublicKeyPEM(&priv.PublicKey),
	}
}

// Serve runs the accept loop.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	rd := rkproto.NewReader(conn)

	env, err := rd.ReadEnvelope()
	if err != nil {
		s.logf("read PUB request: %v", err)
		return
	}
	if env.Op != rkproto.OpPub {
		s.sendError(conn, fmt.Sprintf("expected op %s, got %s", rkproto.OpPub, env.Op))
		return
	}
	if err := rkproto.WriteEnvelope(conn, &rkproto.Envelope{
		Op:           rkproto.OpPub,
		PublicPEMB64: base64.StdEncoding.EncodeToString(s.pubPEM),
	}); err != nil {
		s.logf("send PUB reply: %v", err)
		return
	}

	env, err = rd.ReadEnvelope()
	if err != nil {
		s.logf("read ENROLL request: %v", err)
		return
	}
	if env.Op != rkproto.OpEnroll {
		s.sendError(conn, fmt.Sprintf("expected op %s, got %s", rkproto.OpEnroll, env.Op))
		return
	}

	kc, username, pwHash, err := s.decryptEnroll(env)
	if err != nil {
		s.logf("decrypt ENROLL envelope: %v", err)
		s.sendError(conn, "malformed enrollment envelope")
		return
	}

	if !s.authenticate(username, pwHash) {
		atomic.AddUint64(&s.authFailures, 1)
		s.replyAuthFail(conn, kc)
		return
	}
	atomic.AddUint64(&s.authSuccesses, 1)

	rk, err := randomBytes(rkproto.RKSize)
	if err != nil {
		s.logf("generate rk_0: %v", err)
		s.sendError(conn, "internal error")
		return
	}
	sess := &session{rk: rk, counter: 0}
	if err := s.replyAuthSuccess(conn, kc, sess); err != nil {
		s.logf("send AUTH success: %v", err)
		return
	}

	s.messageLoop(conn, rd, sess)
}

// session is a connection's rotating-key state, per spec.md §4.2.
type session struct {
	rk      []byte
	counter uint64
}

func (s *Server) messageLoop(conn net.Conn, rd *rkproto.Reader, sess *session) {
	for {
		env, err := rd.ReadEnvelope()
		if err != nil {
			if err != io.EOF {
				s.logf("read RK_MSG: %v", err)
			}
			return
		}
		if env.Op != rkproto.OpRKMsg {
			s.sendError(conn, fmt.Sprintf("expected op %s, got %s", rkproto.OpRKMsg, env.Op))
			return
		}

		msg, err := decryptRKMsg(env, sess.rk)
		if err != nil {
			s.logf("decrypt RK_MSG: %v", err)
			s.sendError(conn, "aead authentication failed")
			return
		}
		if msg.Counter != sess.counter {
			s.logf("counter mismatch: have %d, got %d", sess.counter, msg.Counter)
			s.sendError(conn, "counter mismatch")
			return
		}
		advance(sess)

		reply := rkproto.RKMessage{Payload: rkproto.AckPrefix + msg.Payload, Counter: sess.counter}
		env, err = encryptRKMsg(reply, sess.rk)
		if err != nil {
			s.logf("encrypt RK_MSG reply: %v", err)
			return
		}
		if err := rkproto.WriteEnvelope(conn, env); err != nil {
			s.logf("send RK_MSG reply: %v", err)
			return
		}
		advance(sess)
	}
}

// advance ratchets the rotating key forward by one step, per spec.md §4.5.
func advance(sess *session) {
	sess.rk = rkproto.Ratchet(sess.rk, sess.counter)
	sess.counter++
}

func (s *Server) decryptEnroll(env *rkproto.Envelope) (kc []byte, username, pwHash string, err error) {
	ct, err := base64.StdEncoding.DecodeString(env.PayloadB64)
	if err != nil {
		return nil, "", "", fmt.Errorf("decode payload_b64: %w", err)
	}
	plain, err := rkproto.OAEPDecrypt(s.priv, ct)
	if err != nil {
		return nil, "", "", fmt.Errorf("oaep decrypt: %w", err)
	}
	kc, rest, err := readLenPrefixed(plain, rkproto.RKSize)
	if err != nil {
		return nil, "", "", err
	}
	unameBytes, rest, err := readLen8Prefixed(rest)
	if err != nil {
		return nil, "", "", err
	}
	pwBytes, _, err := readLen8Prefixed(rest)
	if err != nil {
		return nil, "", "", err
	}
	return kc, string(unameBytes), string(pwBytes), nil
}

func readLenPrefixed(b []byte, n int) (head, rest []byte, err error) {
	if len(b) < n {
		return nil, nil, fmt.Errorf("enrollment envelope truncated")
	}
	return b[:n], b[n:], nil
}

func readLen8Prefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("enrollment envelope truncated at length prefix")
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n {
		return nil, nil, fmt.Errorf("enrollment envelope length overrun")
	}
	return b[:n], b[n:], nil
}

func (s *Server) authenticate(username, hexPasswordHash string) bool {
	want, ok := s.Users.Lookup(username)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(hexPasswordHash)) == 1
}

func (s *Server) replyAuthFail(conn net.Conn, kc []byte) {
	nonce, ct, err := rkproto.SealAESGCM(kc, []byte(rkproto.AuthFailPlaintext))
	if err != nil {
		s.logf("seal AUTH_FAIL: %v", err)
		return
	}
	ok := false
	_ = rkproto.WriteEnvelope(conn, &rkproto.Envelope{
		Op:       rkproto.OpAuth,
		OK:       &ok,
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		CTB64:    base64.StdEncoding.EncodeToString(ct),
	})
}

func (s *Server) replyAuthSuccess(conn net.Conn, kc []byte, sess *session) error {
	body, err := json.Marshal(rkproto.AuthSuccess{RK: sess.rk, Counter: sess.counter})
	if err != nil {
		return fmt.Errorf("marshal AuthSuccess: %w", err)
	}
	nonce, ct, err := rkproto.SealAESGCM(kc, body)
	if err != nil {
		return fmt.Errorf("seal AUTH success: %w", err)
	}
	ok := true
	return rkproto.WriteEnvelope(conn, &rkproto.Envelope{
		Op:       rkproto.OpAuth,
		OK:       &ok,
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		CTB64:    base64.StdEncoding.EncodeToString(ct),
	})
}

func (s *Server) sendError(conn net.Conn, msg string) {
	_ = rkproto.WriteEnvelope(conn, &rkproto.Envelope{Error: msg})
}

func (s *Server) logf(format string, args ...any) {
	s.Logger.Printf(format, args...)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

func encryptRKMsg(msg rkproto.RKMessage, rk []byte) (*rkproto.Envelope, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal RKMessage: %w", err)
	}
	nonce, ct, err := rkproto.SealAESGCM(rk, body)
	if err != nil {
		return nil, err
	}
	return &rkproto.Envelope{
		Op:       rkproto.OpRKMsg,
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		CTB64:    base64.StdEncoding.EncodeToString(ct),
	}, nil
}

func decryptRKMsg(env *rkproto.Envelope, rk []byte) (rkproto.RKMessage, error) {
	var zero rkproto.RKMessage
	nonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	if err != nil {
		return zero, fmt.Errorf("decode nonce_b64: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.CTB64)
	if err != nil {
		return zero, fmt.Errorf("decode ct_b64: %w", err)
	}
	plain, err := rkproto.OpenAESGCM(rk, nonce, ct)
	if err != nil {
		return zero, err
	}
	var msg rkproto.RKMessage
	if err := json.Unmarshal(plain, &msg); err != nil {
		return zero, fmt.Errorf("unmarshal RKMessage: %w", err)
	}
	return msg, nil
}

// HashPassword returns the hex-encoded SHA-256 digest of password, the form
// stored in the user table and exchanged in the enrollment envelope.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%x", sum)
}
