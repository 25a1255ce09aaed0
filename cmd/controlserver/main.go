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

// Command controlserver runs the rotating-key control channel server (C5a).
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/duoram/duoram/adminhttp"
	"github.com/duoram/duoram/config"
	"github.com/duoram/duoram/rkproto"
	"github.com/duoram/duoram/rkserver"
)

func main() {
	cmd := flag.NewFlagSet("controlserver", flag.ExitOnError)
	configPath := cmd.String("config", "", "deployment config YAML")
	addr := cmd.String("addr", "127.0.0.1:9400", "listen address")
	keyDir := cmd.String("key-dir", "./keys", "directory holding the persisted RSA key pair")
	adminAddr := cmd.String("admin", "", "admin HTTP listen address (empty disables it)")
	if err := cmd.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.Lshortfile)

	users := rkserver.MapUserStore{}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal(err)
		}
		*addr = cfg.ControlAddr
		*keyDir = cfg.KeyDir
		*adminAddr = cfg.AdminAddr
		for name, hash := range cfg.UserMap() {
			users[name] = hash
		}
	}

	priv, err := rkproto.LoadOrGenerateKeyPair(
		filepath.Join(*keyDir, "private.pem"),
		filepath.Join(*keyDir, "public.pem"),
	)
	if err != nil {
		logger.Fatal(err)
	}

	s := rkserver.NewServer(priv, users, logger)

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal(err)
	}
	go func() {
		logger.Printf("control server listening on %s", l.Addr())
		if err := s.Serve(l); err != nil {
			logger.Printf("serve: %v", err)
		}
	}()

	var adminSrv *http.Server
	if *adminAddr != "" {
		r := adminhttp.NewRouter("controlserver", func() any { return s.Stats() })
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

	l.Close()
	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		adminSrv.Shutdown(ctx)
	}
}
