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

// Package config loads the demo deployment file shared by the cmd/*
// binaries: listen addresses, the pairing server's address, the RSA key
// directory for the control channel, and its demo user table.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// User is one control-channel account, stored as a hex SHA-256 password
// digest rather than a plaintext password.
type User struct {
	Name         string `json:"name"`
	PasswordHash string `json:"passwordHash"`
}

// Config is the top-level shape of the deployment YAML file every cmd/*
// binary can load with -config.
type Config struct {
	// PairingAddr is the pairing server's listen address (C2).
	PairingAddr string `json:"pairingAddr"`

	// Rows is the fixed database dimension every party node is configured
	// with, per spec.md §3's "dimension d, fixed for the lifetime of the
	// database".
	Rows int `json:"rows"`

	// PartyA and PartyB configure the two party nodes (C3).
	PartyA PartyConfig `json:"partyA"`
	PartyB PartyConfig `json:"partyB"`

	// ControlAddr is the rotating-key control channel's listen address (C5).
	ControlAddr string `json:"controlAddr"`

	// KeyDir holds the control server's persisted RSA key pair.
	KeyDir string `json:"keyDir"`

	// Users is the control channel's demo user table.
	Users []User `json:"users"`

	// AdminAddr, if non-empty, is where a daemon's /healthz and /stats
	// surface is exposed.
	AdminAddr string `json:"adminAddr"`
}

// PartyConfig configures one of the two party nodes.
type PartyConfig struct {
	ClientAddr   string `json:"clientAddr"`
	PeerListen   string `json:"peerListen"`
	PeerDialAddr string `json:"peerDialAddr"`
}

// Load reads and parses the YAML deployment file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// UserMap renders Users as a username -> password-hash map, the shape
// rkserver.MapUserStore expects.
func (c *Config) UserMap() map[string]string {
	m := make(map[string]string, len(c.Users))
	for _, u := range c.Users {
		m[u.Name] = u.PasswordHash
	}
	return m
}
