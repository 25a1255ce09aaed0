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

// Command party runs one DUORAM party node (C3): it holds one additive
// share of the database and answers WRITE_VEC/READ_SECURE requests.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duoram/duoram/adminhttp"
	"github.com/duoram/duoram/config"
	"github.com/duoram/duoram/party"
)

func main() {
	cmd := flag.NewFlagSet("party", flag.ExitOnError)
	configPath := cmd.String("config", "", "deployment config YAML")
	role := cmd.String("role", "", "party role: A or B")
	rows := cmd.Int("rows", 0, "database dimension")
	pairingAddr := cmd.String("pairing-addr", "", "pairing server address")
	clientAddr := cmd.String("client-addr", "", "listen address for client WRITE_VEC/READ_SECURE requests")
	peerListen := cmd.String("peer-listen", "", "listen address for the peer connection (role B only)")
	peerDialAddr := cmd.String("peer-dial-addr", "", "peer's peer-listen address to dial (role A only)")
	adminAddr := cmd.String("admin", "", "admin HTTP listen address (empty disables it)")
	if err := cmd.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.Lshortfile)

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal(err)
		}
		*rows = cfg.Rows
		*pairingAddr = cfg.PairingAddr
		*adminAddr = cfg.AdminAddr
		switch *role {
		case "A":
			*clientAddr = cfg.PartyA.ClientAddr
			*peerDialAddr = cfg.PartyA.PeerDialAddr
		case "B":
			*clientAddr = cfg.PartyB.ClientAddr
			*peerListen = cfg.PartyB.PeerListen
		}
	}

	n, err := party.NewNode(party.Config{
		Role:           party.Role(*role),
		Rows:           *rows,
		PairingAddr:    *pairingAddr,
		PeerListenAddr: *peerListen,
		PeerDialAddr:   *peerDialAddr,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal(err)
	}

	clientListener, err := net.Listen("tcp", *clientAddr)
	if err != nil {
		logger.Fatal(err)
	}
	go func() {
		logger.Printf("party %s client port listening on %s", *role, clientListener.Addr())
		if err := n.ServeClients(clientListener); err != nil {
			logger.Printf("serve clients: %v", err)
		}
	}()

	var peerListener net.Listener
	if party.Role(*role) == party.RoleB {
		peerListener, err = net.Listen("tcp", *peerListen)
		if err != nil {
			logger.Fatal(err)
		}
		go func() {
			logger.Printf("party %s peer port listening on %s", *role, peerListener.Addr())
			if err := n.ServePeer(peerListener); err != nil {
				logger.Printf("serve peer: %v", err)
			}
		}()
	}

	var adminSrv *http.Server
	if *adminAddr != "" {
		r := adminhttp.NewRouter("party-"+*role, func() any { return n.Stats() })
		adminSrv = &http.Server{Addr: *adminAddr, Handler: r}
		go func() {
			logger.Printf("admin HTTP listening on %s", *adminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("admin serve: %v", err)
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	clientListener.Close()
	if peerListener != nil {
		peerListener.Close()
	}
	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		adminSrv.Shutdown(ctx)
	}
}
