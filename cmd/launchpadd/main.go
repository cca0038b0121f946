// Launchpad node daemon.
//
// Usage:
//
//	launchpadd [--testnet] [--sink --sink-dsn=...]  Run node
//	launchpadd --help                               Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	"github.com/Klingon-tech/klingnet-launchpad/internal/node"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Stop()

	if err := n.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
