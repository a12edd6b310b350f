package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/doeshing/qw/internal/infrastructure/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.DefaultOptions(), os.Args[1:])
	stop()
	os.Exit(code)
}
