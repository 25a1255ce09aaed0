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

// Command controlclient enrolls against a control server and sends payloads
// read from stdin, one per line, printing the server's ACK for each (C5b).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/duoram/duoram/rkclient"
)

func main() {
	cmd := flag.NewFlagSet("controlclient", flag.ExitOnError)
	addr := cmd.String("addr", "127.0.0.1:9400", "control server address")
	username := cmd.String("user", "", "username")
	password := cmd.String("password", "", "password")
	message := cmd.String("message", "", "send this one payload and exit instead of reading stdin")
	if err := cmd.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.Lshortfile)

	if *username == "" || *password == "" {
		logger.Fatal("-user and -password are required")
	}

	c, err := rkclient.Dial(*addr, *username, *password)
	if err != nil {
		logger.Fatal(err)
	}
	defer c.Close()

	if *message != "" {
		reply, err := c.Send(*message)
		if err != nil {
			logger.Fatal(err)
		}
		fmt.Println(reply)
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		reply, err := c.Send(scanner.Text())
		if err != nil {
			logger.Fatal(err)
		}
		fmt.Println(reply)
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal(err)
	}
}
