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

// Command coordinator runs the DUORAM client (C4). With -op set it performs
// a single read or write and exits, per spec.md §6's one-shot CLI contract
// (`--op {read|write} --dim N --idx I [--val V] --c0 H:P --c1 H:P`, exit
// code 0 on success and non-zero on error). Without -op it instead runs as
// a long-lived HTTP front end, turning GET /read and POST /write requests
// into the same two-party protocol against the party nodes' client-facing
// ports — see DESIGN.md for why both surfaces coexist.
package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/duoram/duoram/adminhttp"
	"github.com/duoram/duoram/config"
	"github.com/duoram/duoram/coordinator"
	"github.com/duoram/duoram/ring"
)

type daemon struct {
	c      *coordinator.Coordinator
	reads  uint64
	writes uint64
}

func (d *daemon) stats() any {
	return struct {
		Reads  uint64 `json:"reads"`
		Writes uint64 `json:"writes"`
	}{
		Reads:  atomic.LoadUint64(&d.reads),
		Writes: atomic.LoadUint64(&d.writes),
	}
}

func (d *daemon) handleRead(w http.ResponseWriter, r *http.Request) {
	dim, idx, err := dimIdx(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	val, err := d.c.Read(dim, idx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	atomic.AddUint64(&d.reads, 1)
	b := val.Bytes()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Value uint32 `json:"value"`
	}{Value: binary.BigEndian.Uint32(b[:])})
}

func (d *daemon) handleWrite(w http.ResponseWriter, r *http.Request) {
	dim, idx, err := dimIdx(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	valStr := r.URL.Query().Get("val")
	val, err := strconv.ParseUint(valStr, 10, 32)
	if err != nil {
		http.Error(w, "bad val", http.StatusBadRequest)
		return
	}
	if err := d.c.Write(dim, idx, ring.FromUint32(uint32(val))); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	atomic.AddUint64(&d.writes, 1)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		OK bool `json:"ok"`
	}{OK: true})
}

func dimIdx(r *http.Request) (dim, idx int, err error) {
	q := r.URL.Query()
	dim, err = strconv.Atoi(q.Get("dim"))
	if err != nil {
		return 0, 0, err
	}
	idx, err = strconv.Atoi(q.Get("idx"))
	if err != nil {
		return 0, 0, err
	}
	return dim, idx, nil
}

// runOneShot implements spec.md §6's CLI contract: a single read or write
// against the two party addresses given by -c0/-c1, printing the result (or
// the error) to stdout/stderr and exiting 0 on success, non-zero otherwise.
func runOneShot(op string, dim, idx int, val uint32, c0, c1 string) {
	if c0 == "" || c1 == "" {
		fmt.Fprintln(os.Stderr, "coordinator: -op requires -c0 and -c1 (or -config)")
		os.Exit(1)
	}
	c := coordinator.New(c0, c1)

	switch op {
	case "read":
		got, err := c.Read(dim, idx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "coordinator: read: %v\n", err)
			os.Exit(1)
		}
		b := got.Bytes()
		fmt.Println(binary.BigEndian.Uint32(b[:]))
	case "write":
		if err := c.Write(dim, idx, ring.FromUint32(val)); err != nil {
			fmt.Fprintf(os.Stderr, "coordinator: write: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "coordinator: -op must be \"read\" or \"write\", got %q\n", op)
		os.Exit(1)
	}
}

func main() {
	cmd := flag.NewFlagSet("coordinator", flag.ExitOnError)
	configPath := cmd.String("config", "", "deployment config YAML")
	httpAddr := cmd.String("http-addr", "127.0.0.1:9000", "HTTP listen address")
	addrA := cmd.String("party-a", "", "party A client-facing address")
	addrB := cmd.String("party-b", "", "party B client-facing address")

	op := cmd.String("op", "", "one-shot operation: read or write (omit to run as an HTTP daemon)")
	dim := cmd.Int("dim", 0, "vector dimension")
	idx := cmd.Int("idx", 0, "index")
	val := cmd.Uint("val", 0, "value to write (write only)")
	c0 := cmd.String("c0", "", "party A client-facing address (one-shot mode)")
	c1 := cmd.String("c1", "", "party B client-facing address (one-shot mode)")

	if err := cmd.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.Lshortfile)

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal(err)
		}
		*addrA = cfg.PartyA.ClientAddr
		*addrB = cfg.PartyB.ClientAddr
		if *c0 == "" {
			*c0 = cfg.PartyA.ClientAddr
		}
		if *c1 == "" {
			*c1 = cfg.PartyB.ClientAddr
		}
	}

	if *op != "" {
		runOneShot(*op, *dim, *idx, uint32(*val), *c0, *c1)
		return
	}

	d := &daemon{c: coordinator.New(*addrA, *addrB)}

	r := adminhttp.NewRouter("coordinator", d.stats)
	r.HandleFunc("/read", d.handleRead).Methods(http.MethodGet)
	r.HandleFunc("/write", d.handleWrite).Methods(http.MethodPost)

	srv := &http.Server{Addr: *httpAddr, Handler: r}
	go func() {
		logger.Printf("coordinator HTTP listening on %s", *httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("serve: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
