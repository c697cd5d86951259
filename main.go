package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sw33tLie/cwvcheck/cmd"
)

func main() {
	// Ctrl+C stops the batch between origins; rows already written stay in the report
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd.Execute(ctx)
}
