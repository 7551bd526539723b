package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/notedrive/notedrive/pkg/notedrive"
)

func main() {
	// SIGINT and SIGTERM cancel the context, which drains the server.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := notedrive.Main(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
