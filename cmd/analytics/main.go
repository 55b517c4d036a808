package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang-branch-analytics/cmd/analytics/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	if err != nil {
		os.Exit(cmd.NewCLIErrorHandler().HandleError(err))
	}
}
