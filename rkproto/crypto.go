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
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// RKSize is the size in bytes of both the bootstrap session key K_c and
// every rotating key rk.
const RKSize = 32

// SealAESGCM encrypts plaintext under key (which must be RKSize bytes) with
// a fresh random 12-byte nonce and a 16-byte authentication tag, empty
// associated data, per spec.md §4.5 "AEAD".
func SealAESGCM(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("rkproto: nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// OpenAESGCM decrypts and authenticates ciphertext under key.
func OpenAESGCM(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("rkproto: bad nonce size %d", len(nonce))
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rkproto: aead authentication failed: %w", err)
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != RKSize {
		return nil, fmt.Errorf("rkproto: key must be %d bytes, got %d", RKSize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("rkproto: aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("rkproto: gcm: %w", err)
	}
	return aead, nil
}

// Ratchet advances a rotating key by one step, per spec.md §4.5:
// rk <- HMAC-SHA256(key=rk, msg="rotate" || be64(counter)).
func Ratchet(rk []byte, counter uint64) []byte {
	mac := hmac.New(sha256.New, rk)
	mac.Write([]byte("rotate"))
	var cb [8]byte
	binary.BigEndian.PutUint64(cb[:], counter)
	mac.Write(cb[:])
	return mac.Sum(nil)
}

// OAEPEncrypt wraps plaintext for pub using RSA-OAEP with SHA-256 and
// MGF1(SHA-256), per spec.md §4.5 step 2.
func OAEPEncrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
}

// OAEPDecrypt unwraps an OAEP envelope with the matching private key.
func OAEPDecrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
}
