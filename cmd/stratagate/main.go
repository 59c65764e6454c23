// cmd/stratagate/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dalemusser/stratagate/internal/app/bootstrap"
	"github.com/dalemusser/waffle/app"
)

func main() {
	// Cancelled on SIGINT/SIGTERM so WAFFLE can drain and run Shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
