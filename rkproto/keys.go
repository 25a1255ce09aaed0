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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// KeyBits is the RSA modulus size used for enrollment bootstrapping.
const KeyBits = 2048

// LoadOrGenerateKeyPair reads a PKCS#1 private key from privPath. If privPath
// does not exist, it generates a fresh KeyBits-bit key pair and writes it to
// privPath/pubPath. When privPath loads, pubPath is neither read nor
// rewritten, so a missing public key file is not recreated.
func LoadOrGenerateKeyPair(privPath, pubPath string) (*rsa.PrivateKey, error) {
	priv, err := loadPrivateKey(privPath)
	if err == nil {
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	priv, err = rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("rkproto: generate key: %w", err)
	}
	if err := savePrivateKey(privPath, priv); err != nil {
		return nil, err
	}
	if err := savePublicKey(pubPath, &priv.PublicKey); err != nil {
		return nil, err
	}
	return priv, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(der)
	if block == nil {
		return nil, fmt.Errorf("rkproto: %s: not a PEM file", path)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("rkproto: %s: parse private key: %w", path, err)
	}
	return priv, nil
}

func savePrivateKey(path string, priv *rsa.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("rkproto: mkdir: %w", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

func savePublicKey(path string, pub *rsa.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("rkproto: mkdir: %w", err)
	}
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o644)
}

// EncodePublicKeyPEM renders pub as a PEM block, for transmission inside a
// PUB envelope.
func EncodePublicKeyPEM(pub *rsa.PublicKey) []byte {
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)}
	return pem.EncodeToMemory(block)
}

// DecodePublicKeyPEM parses a PEM-encoded RSA public key.
func DecodePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("rkproto: not a PEM block")
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("rkproto: parse public key: %w", err)
	}
	return pub, nil
}
