package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/adchain-network/settlements/app/settlement"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := settlement.Initialize(ctx)
	if err != nil {
		panic(err)
	}

	// Cron and the ops server run until the context is cancelled.
	app.Start(ctx)
}
