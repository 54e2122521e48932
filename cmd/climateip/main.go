// climate-ip bridge
//
// climateip drives IP air conditioners described by YAML descriptors and
// bridges them to MQTT, a REST/WebSocket API, SQLite history and InfluxDB.
//
//	climateip serve                     run the bridge
//	climateip probe [device...]         initialise, poll once, print snapshots
//	climateip set <device> <op> <value> write one operation
//	climateip migrate up|down|status    manage the history schema
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
