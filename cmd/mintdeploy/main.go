package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pendergraft/mintdeploy/internal/cli"
	"github.com/pendergraft/mintdeploy/internal/runner"
)

var version = "dev"

func main() {
	// Cancel in-flight RPC and explorer calls on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx, version, os.Args[1:])
	stop()

	if err != nil {
		slog.Error("command failed", "error", err)
	}
	os.Exit(runner.ExitCode(err))
}
