// Command chatserver runs the in-memory development directory and event
// server that chatsecure clients talk to.
package main

import (
	"flag"
	"fmt"
	"os"

	"chatsecure/internal/log"
	"chatsecure/internal/server"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "listen address")
	level := flag.String("log-level", "INFO", "log level (ERROR..DEBUG)")
	flag.Parse()

	backend, err := log.New("", *level, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	srv := server.New(backend.GetLogger("server"))
	if err := srv.Listen(*addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
